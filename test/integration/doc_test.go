// Package integration_test contains end-to-end tests that run the client
// against real backends started with testcontainers.
//
// The tests need Docker. They are skipped with -short or when
// SKIP_INTEGRATION_TESTS=1 is set:
//
//	go test ./test/integration/...            # run against containers
//	go test -short ./...                      # unit tests only
package integration_test
