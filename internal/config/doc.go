// Package config provides centralized configuration management for the
// onboarding daemon: a JSON file loaded at startup with defaults applied for
// any section the operator leaves out. Paths inside the file are resolved
// relative to the file's own directory.
package config
