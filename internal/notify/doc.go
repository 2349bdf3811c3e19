// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 UsersFlow Contributors

// Package notify delivers account recovery notices out of band.
//
// LogNotifier is a development sink that only records that a notice was
// produced. AMQPPublisher hands the notice to a mail worker over RabbitMQ.
package notify
