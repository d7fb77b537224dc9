package main

import "github.com/aescanero/patchwork/pkg/module"

// nopStatus stands in for the worker when components are only validated
type nopStatus struct{}

func (nopStatus) Snapshot() module.Snapshot { return module.Snapshot{} }
