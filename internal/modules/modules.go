// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package modules provides the built-in method sets the justrpc command can
// serve. Every method of a module is registered as "module.name".
package modules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mengzhuo/justrpc"
)

// builder returns the handlers of one module. It gets the registry so
// introspection methods can list what is served.
type builder func(reg *justrpc.Registry) map[string]justrpc.Handler

var builtin = map[string]builder{
	"math":    mathModule,
	"strings": stringsModule,
	"time":    timeModule,
	"sys":     sysModule,
}

// Names returns the available module names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register registers the named modules into reg, in order.
func Register(reg *justrpc.Registry, names ...string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		build, ok := builtin[name]
		if !ok {
			return fmt.Errorf("unknown module %q (available: %s)", name, strings.Join(Names(), ", "))
		}
		if err := reg.RegisterModule(name, build(reg)); err != nil {
			return fmt.Errorf("register module %s: %w", name, err)
		}
	}
	return nil
}
