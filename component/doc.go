// Package component defines the lifecycle interface shared by every dbscope
// scope: a named resource that is started, stopped and asked for its health.
package component
