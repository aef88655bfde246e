package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	addr  string
	user  string
	token string
	http  *http.Client
}

func clientFrom(cmd *cobra.Command) *client {
	addr, _ := cmd.Flags().GetString("addr")
	user, _ := cmd.Flags().GetString("user")
	token, _ := cmd.Flags().GetString("token")
	return &client{
		addr:  strings.TrimRight(addr, "/"),
		user:  user,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// call sends one request and pretty-prints the JSON response to out.
// Any non-2xx answer is returned as an error after printing the body.
func (c *client) call(ctx context.Context, out io.Writer, method, path string, body any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		pretty.WriteByte('\n')
		out.Write(pretty.Bytes())
	} else {
		out.Write(raw)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", method, path, res.Status)
	}
	return nil
}
