/*
Package pgtest starts a throwaway PostgreSQL server in a Docker container for
tests that need the postgres driver. It wraps the testcontainers-go postgres
module and hands back a database.Config pointing at the server's maintenance
database, ready to be registered under an alias.

Tests using this package should carry the integration build tag:

	go test -tags integration ./...

To keep the container alive after a failing test for manual inspection, pass
the Inspect flag:

	go test -tags integration -pgtest.inspect ./database/testutil

This package is intended to be used in tests only.
*/
package pgtest
