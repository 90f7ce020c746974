// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing turns and histories and when
// simulating store failures. They are not intended for production usage.
package testutil
