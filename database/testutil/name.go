package testutil

import (
	"strings"

	"github.com/google/uuid"
)

// tokenLength is the number of random hex characters in generated names.
const tokenLength = 12

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:tokenLength]
}

// databaseName returns "<prefix>_<12 random hex characters>".
func databaseName(prefix string) string {
	return prefix + "_" + randomToken()
}

// savepointName returns a savepoint name unique within the process.
func savepointName() string {
	return "dbscope_sp_" + randomToken()
}
