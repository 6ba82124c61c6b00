// Package poller discovers completed broadcasts on the platform and feeds
// them into enrichment. It is the safety net for endings the scheduler
// never observed, such as parts that finished while the daemon was down.
package poller
