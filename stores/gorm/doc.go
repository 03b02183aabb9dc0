//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the authcore account
// and recovery token stores. It supports any database that GORM supports
// (PostgreSQL, MySQL, SQLite, etc.).
//
// # Database Schema
//
// AutoMigrate creates:
//   - accounts: local and federated identities, with unique indexes on the
//     normalized username, the email and (provider, provider_subject)
//   - recovery_tokens: hashed confirmation and password reset tokens
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	_ = gormstore.AutoMigrate(db)
//	store := authcore.NewIdentityStore(gormstore.NewAccountStore(db), gormstore.NewTokenStore(db))
//
// TranslateError must be enabled for unique violations to surface as
// authcore.ErrDuplicate.
package gorm
