// Package notifications publishes operator-facing events over ntfy.
//
// Components report facts through Publish; titles, emoji, tags, and priority
// are decided here so the rest of the daemon stays free of presentation
// concerns. Per-category toggles and a dedup window come from configuration,
// and an unconfigured topic yields a noop service.
package notifications
