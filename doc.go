// SPDX-License-Identifier: MIT

// Package skylib is a utility library for game-server plugins: configuration
// documents with defaults, migrations and hot reload, typed codecs, persistent
// key/value state, a pooled SQL data store and small time and math helpers.
//
// A Library bundles the shared pieces an application builds once: the codec
// registry, the background runner and the library's own settings. Nothing is
// global; every component is constructed explicitly and closed by its owner.
//
//	lib, err := skylib.New(ctx, "plugins/MyPlugin")
//	if err != nil {
//		return err
//	}
//	defer lib.Close(context.Background())
//
//	mgr, err := lib.ConfigManager("config.yml", schema)
package skylib
