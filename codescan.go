// Package codescan incrementally extracts functions, classes and HTTP route
// bindings from Python, Rust, JavaScript and TypeScript source trees.
package codescan
