// Command perch is the CLI for the continuous broadcast daemon: it runs the
// supervisor, inspects the broadcast chain, manages configuration, and
// triggers one-shot enrichment.
package main
