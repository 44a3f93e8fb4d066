package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/slipway-ci/slipway/pkg/env"
	"github.com/slipway-ci/slipway/pkg/global"
	"github.com/slipway-ci/slipway/pkg/util/console"
)

// checkURL is a var so tests can point the check at a local server.
var checkURL = "https://update.slipway.ci/v1/check"

func isUpdateEnabled() bool {
	return os.Getenv(env.NoUpdateCheckEnvVarName) == ""
}

// DisplayAndCheckForRelease prints a stored update message if one exists and
// kicks off a background check for a newer release. The result of that check
// is displayed the next time slipway runs. Errors are returned for the caller
// to ignore so an unreachable update server never breaks a command.
func DisplayAndCheckForRelease() error {
	if !isUpdateEnabled() {
		return fmt.Errorf("update check disabled")
	}

	s, err := loadState()
	if err != nil {
		return err
	}

	if s.Version != global.Version {
		console.Debugf("Resetting update message because slipway has been upgraded")
		return writeState(&state{Message: "", LastChecked: time.Now(), Version: global.Version})
	}

	if time.Since(s.LastChecked) > time.Hour {
		startCheckingForRelease()
	}
	if s.Message != "" {
		console.Info(s.Message)
		console.Info("")
	}
	return nil
}

func startCheckingForRelease() {
	go func() {
		console.Debugf("Checking for updates...")
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		switch r, err := checkForRelease(ctx); {
		case err == nil:
			if r == nil {
				break
			}
			if err := writeState(&state{Message: r.Message, LastChecked: time.Now(), Version: global.Version}); err != nil {
				console.Debugf("Failed to write update state: %s", err)
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			break
		default:
			console.Debugf("failed querying for new release: %v", err)
		}
	}()
}

type updateCheckResponse struct {
	Message string `json:"message"`
}

func checkForRelease(ctx context.Context) (*updateCheckResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")
	q := req.URL.Query()
	q.Add("version", global.Version)
	q.Add("commit", global.Commit)
	q.Add("os", runtime.GOOS)
	q.Add("arch", runtime.GOARCH)
	req.URL.RawQuery = q.Encode()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var response updateCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}
	return &response, nil
}
