package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/uniroute/uniroute/core/university"
)

type (
	catalogFile struct {
		Universities []catalogUniversity `json:"universities"`
	}

	catalogUniversity struct {
		university.NewUniversity
		Programs []university.NewProgram `json:"programs"`
	}
)

// seedCatalog loads universities and their programs from a JSON file.
// Universities already present (same name and country) are skipped entirely.
func (cli *commandLine) seedCatalog(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading catalog file")
	}
	var catalog catalogFile
	if err = json.Unmarshal(raw, &catalog); err != nil {
		return errors.Wrap(err, "parsing catalog file")
	}

	ctx := context.Background()
	existing, err := cli.uniSvc.QueryAll(ctx)
	if err != nil {
		return errors.Wrap(err, "querying universities")
	}
	seen := make(map[string]struct{}, len(existing))
	for _, uni := range existing {
		seen[uni.Name+"|"+uni.Country] = struct{}{}
	}

	var created, skipped int
	for _, entry := range catalog.Universities {
		if err = entry.Validate(); err != nil {
			return errors.Wrapf(err, "invalid university %q", entry.Name)
		}
		if _, ok := seen[entry.Name+"|"+entry.Country]; ok {
			skipped++
			continue
		}

		uni, err := cli.uniSvc.Create(ctx, entry.NewUniversity)
		if err != nil {
			return errors.Wrapf(err, "creating university %q", entry.Name)
		}
		for i := range entry.Programs {
			np := entry.Programs[i]
			if err = np.Validate(); err != nil {
				return errors.Wrapf(err, "invalid program %q of %q", np.Name, entry.Name)
			}
			if _, err = cli.uniSvc.AddProgram(ctx, uni.ID, np); err != nil {
				return errors.Wrapf(err, "adding program %q to %q", np.Name, entry.Name)
			}
		}
		created++
	}

	fmt.Printf("seeded %d universities (%d skipped)\n", created, skipped)
	return nil
}
