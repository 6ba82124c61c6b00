// Package testsupport provides shared builders and fakes for package tests.
package testsupport
