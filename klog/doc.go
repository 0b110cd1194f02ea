// Package klog provides the leveled, printf-style logging facility shared by
// every kernel subsystem. It is deliberately minimal: a level gate over the
// standard library logger with a swappable sink so tests can capture output.
package klog
