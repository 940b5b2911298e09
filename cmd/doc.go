// Package cmd defines the acra-collector command line: serve runs the
// collector, check-config validates a config file without starting it.
package cmd
