// Package catalog keeps the resources found by successive discovery
// sessions in one LRU-bounded table, split into Mynewt sensors, smart
// devices and everything else for presentation.
package catalog
