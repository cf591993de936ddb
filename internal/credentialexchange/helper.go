package credentialexchange

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteCredentialProcess emits the credential_process payload. The writer
// is expected to be stdout and nothing else may be written to it.
func WriteCredentialProcess(w io.Writer, creds AWSCredentials) error {
	creds.Version = 1

	jsonBytes, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	fmt.Fprint(w, string(jsonBytes))
	return nil
}
