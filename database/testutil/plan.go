package testutil

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/database/migration"
	"github.com/kbukum/dbscope/errors"
)

// provisioned is one temporary database and the aliases pointed at it.
type provisioned struct {
	name    string
	driver  database.Driver
	aliases []string
	// configs holds the temporary config of every alias in aliases.
	configs map[string]database.Config
	// cfg is used to create, connect to and drop the database.
	cfg     database.Config
	mirrors []string

	db         *database.DB
	migrations []migration.Record
}

func (p *provisioned) has(alias string) bool {
	_, ok := p.configs[alias]
	return ok
}

// planDatabases resolves which temporary databases opts needs and the order
// to create them in. Aliases reaching the same database share one entry.
func planDatabases(opts *TemporaryDatabaseOptions) ([]*provisioned, error) {
	aliases, err := provisionedAliases(opts)
	if err != nil {
		return nil, err
	}

	var groups []*provisioned
	bySignature := make(map[string]*provisioned)
	for _, alias := range aliases {
		base, _ := opts.Settings.Get(alias)
		driver := opts.Driver
		if driver == nil {
			if driver, err = database.LookupDriver(base.Driver); err != nil {
				return nil, errors.InvalidConfig("driver", fmt.Sprintf("alias %q: %v", alias, err))
			}
		}

		signature := base.Signature()
		p, ok := bySignature[signature]
		if !ok {
			p = &provisioned{
				name:    databaseName(opts.DBPrefix),
				driver:  driver,
				configs: make(map[string]database.Config),
			}
			bySignature[signature] = p
			groups = append(groups, p)
		}
		p.aliases = append(p.aliases, alias)
		p.configs[alias] = driver.TemporaryConfig(base, p.name)
	}

	for _, p := range groups {
		lead := p.aliases[0]
		if p.has(opts.Alias) {
			lead = opts.Alias
		}
		p.cfg = p.configs[lead]
	}

	deps, err := aliasDependencies(opts, aliases)
	if err != nil {
		return nil, err
	}
	return dependencyOrdered(groups, deps)
}

// provisionedAliases returns opts.Aliases, or every non-mirror alias when
// it is empty, with opts.Alias added.
func provisionedAliases(opts *TemporaryDatabaseOptions) ([]string, error) {
	requested := opts.Aliases
	if len(requested) == 0 {
		for _, alias := range opts.Settings.Aliases() {
			if cfg, _ := opts.Settings.Get(alias); cfg.Mirror == "" {
				requested = append(requested, alias)
			}
		}
	}

	seen := make(map[string]bool)
	var aliases []string
	for _, alias := range append([]string{opts.Alias}, requested...) {
		if seen[alias] {
			continue
		}
		if _, ok := opts.Settings.Get(alias); !ok {
			return nil, errors.InvalidConfig("alias", fmt.Sprintf("no database configured under %q", alias))
		}
		seen[alias] = true
		aliases = append(aliases, alias)
	}
	return aliases, nil
}

func aliasDependencies(opts *TemporaryDatabaseOptions, aliases []string) (map[string][]string, error) {
	included := make(map[string]bool, len(aliases))
	for _, alias := range aliases {
		included[alias] = true
	}

	deps := make(map[string][]string, len(aliases))
	for _, alias := range aliases {
		d, ok := opts.Dependencies[alias]
		if !ok {
			if alias != DefaultAlias && included[DefaultAlias] {
				deps[alias] = []string{DefaultAlias}
			}
			continue
		}
		for _, dep := range d {
			if !included[dep] {
				return nil, errors.InvalidConfig("dependencies",
					fmt.Sprintf("alias %q depends on %q, which gets no temporary database", alias, dep))
			}
		}
		deps[alias] = d
	}
	return deps, nil
}

// dependencyOrdered orders groups so that every alias comes after the
// aliases it depends on. Dependencies inside one group are satisfied by the
// group itself. Groups keep their relative order where dependencies allow.
func dependencyOrdered(groups []*provisioned, deps map[string][]string) ([]*provisioned, error) {
	resolved := make(map[string]bool)
	ordered := make([]*provisioned, 0, len(groups))
	pending := groups

	for len(pending) > 0 {
		var deferred []*provisioned
		for _, p := range pending {
			if ready(p, deps, resolved) {
				ordered = append(ordered, p)
				for _, alias := range p.aliases {
					resolved[alias] = true
				}
				continue
			}
			deferred = append(deferred, p)
		}
		if len(deferred) == len(pending) {
			var stuck []string
			for _, p := range deferred {
				stuck = append(stuck, p.aliases...)
			}
			sort.Strings(stuck)
			return nil, errors.InvalidConfig("dependencies",
				"circular dependency between aliases "+strings.Join(stuck, ", "))
		}
		pending = deferred
	}
	return ordered, nil
}

func ready(p *provisioned, deps map[string][]string, resolved map[string]bool) bool {
	for _, alias := range p.aliases {
		for _, dep := range deps[alias] {
			if !resolved[dep] && !p.has(dep) {
				return false
			}
		}
	}
	return true
}
