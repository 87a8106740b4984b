// Package config provides configuration structures and utilities for pageaudit.
// It defines the options that select the page engine, bound page loading,
// route traffic through a proxy, and place the exported report, plus the
// per-host request settings read from the .pageaudit YAML file.
package config
