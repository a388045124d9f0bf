// Package awsfake holds in-memory stand-ins for the AWS KMS, AWS Private CA
// and SSM Parameter Store APIs. They perform real cryptography with locally generated keys so that
// requests, signatures and issued certificates can be verified, which makes
// them useful both in tests and for dry runs that must not touch an account.
package awsfake
