// Package logutil provides shared infrastructure for logging.
package logutil

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu      sync.Mutex
	out     io.Writer = io.Discard
	outFile *os.File
	loggers []*log.Logger
)

// GetLogger gets a logger with the given prefix, writing to the process-wide
// log output. The output defaults to io.Discard until SetOutput or
// SetOutputFile is called.
func GetLogger(prefix string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	logger := log.New(out, prefix, log.LstdFlags)
	loggers = append(loggers, logger)
	return logger
}

// SetOutput redirects the output of all loggers, including those to be
// created in the future, to the given writer.
func SetOutput(newOut io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeOutFile()
	out = newOut
	for _, logger := range loggers {
		logger.SetOutput(out)
	}
}

// SetOutputFile is like SetOutput, with a file opened (or created) from the
// given path. An empty path resets the output to io.Discard.
func SetOutputFile(fname string) error {
	mu.Lock()
	defer mu.Unlock()
	closeOutFile()
	if fname == "" {
		out = io.Discard
	} else {
		file, err := os.OpenFile(fname, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		outFile = file
		out = file
	}
	for _, logger := range loggers {
		logger.SetOutput(out)
	}
	return nil
}

func closeOutFile() {
	if outFile != nil {
		outFile.Close()
		outFile = nil
	}
}
