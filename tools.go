// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

//go:build tools
// +build tools

// Package main keeps the UsersFlow test stack in go.mod so `go mod tidy`
// does not drop modules that only build-tagged suites import.
package main

import (
	// Assertions, mocks and the migration suite in internal/store.
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
	_ "github.com/stretchr/testify/assert"
	_ "github.com/stretchr/testify/mock"
	_ "github.com/stretchr/testify/require"

	// Repository tests run against pgxmock; coordinator tests seed fake accounts.
	_ "github.com/brianvoe/gofakeit/v6"
	_ "github.com/pashagolub/pgxmock/v4"

	// Goroutine leak checks for the token stores and the coordinator.
	_ "go.uber.org/goleak"

	// Postgres and Redis containers behind the integration build tag.
	_ "github.com/testcontainers/testcontainers-go"
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"
)
