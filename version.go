package composetest

// Version is the current version of the go-composetest library
const Version = "1.0.0"
