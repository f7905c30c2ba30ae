package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// ValidateIdentity performs a reachability check through the options'
// identity by fetching checkURL and expecting HTTP 200. The plain transport
// is always used: validation answers "does this egress path carry traffic",
// not "does it pass fingerprint checks".
func ValidateIdentity(ctx context.Context, checkURL string, opts Options) error {
	opts.Mode = ""
	client, err := newPlainClient(opts)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Do(ctx, &Request{URL: checkURL})
	if err != nil {
		return fmt.Errorf("egress check request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("egress check returned status %d", resp.StatusCode)
	}
	return nil
}
