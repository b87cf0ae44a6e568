package main

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// newLogger returns a human-readable development logger when debug is set
// and a JSON production logger otherwise.
func newLogger(debug bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, eris.Wrap(err, "init logger")
	}
	return logger, nil
}
