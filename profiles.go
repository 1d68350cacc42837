package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uitable"
	log "github.com/sirupsen/logrus"
)

const placesFileName = "places.sqlite"

// Profile is a Firefox profile directory holding a places database.
type Profile struct {
	Name     string
	PlacesDB string
	DBSize   int64
}

// FriendlySize renders DBSize for humans, e.g. "12 MiB".
func (p Profile) FriendlySize() string {
	return humanize.IBytes(uint64(p.DBSize))
}

// profilesRoot returns the directory Firefox keeps profiles in for goos.
func profilesRoot(home, goos string) string {
	switch goos {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "Mozilla", "Firefox", "Profiles")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Firefox", "Profiles")
	default:
		return filepath.Join(home, ".mozilla", "firefox")
	}
}

// findProfiles returns every subdirectory of root that holds a places
// database, largest database first. Entries that cannot be read are skipped.
func findProfiles(root string) ([]Profile, error) {
	log.Debugf("using profile path: %s", root)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	var profiles []Profile
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		log.Tracef("considering %s", dir)

		info, err := os.Stat(dir)
		if err != nil {
			log.Debugf("skipping %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			log.Tracef("  not a directory: %s", dir)
			continue
		}

		db := filepath.Join(dir, placesFileName)
		dbInfo, err := os.Stat(db)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Debugf("skipping %s: %v", db, err)
			}
			continue
		}
		if !dbInfo.Mode().IsRegular() {
			continue
		}
		profiles = append(profiles, Profile{Name: e.Name(), PlacesDB: db, DBSize: dbInfo.Size()})
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].DBSize > profiles[j].DBSize
	})
	for _, p := range profiles {
		log.Debugf("found %q with a %s %s", p.Name, p.FriendlySize(), placesFileName)
	}
	return profiles, nil
}

// defaultProfile picks the profile with the largest places database.
func defaultProfile(root string) (Profile, error) {
	profiles, err := findProfiles(root)
	if err != nil {
		return Profile{}, err
	}
	if len(profiles) == 0 {
		return Profile{}, fmt.Errorf("no profiles found in %s", root)
	}
	return profiles[0], nil
}

// sourceProfile describes an explicitly given places database.
func sourceProfile(path string) (Profile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Profile{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Profile{}, fmt.Errorf("stat places database: %w", err)
	}
	if info.IsDir() {
		return Profile{}, fmt.Errorf("%s is a directory", abs)
	}
	return Profile{PlacesDB: abs, DBSize: info.Size()}, nil
}

func writeProfilesTable(w io.Writer, profiles []Profile) error {
	table := uitable.New()
	table.MaxColWidth = 80
	table.AddRow("PROFILE", "SIZE", "PLACES DATABASE")
	for _, p := range profiles {
		table.AddRow(p.Name, p.FriendlySize(), p.PlacesDB)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}
