// Package enrich post-processes ended broadcasts: it downloads the
// recording, scans it for motion, and writes the findings back to the
// platform as a title suffix and a description report.
package enrich
