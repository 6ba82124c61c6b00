package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"perch/internal/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// apiGet fetches a JSON payload from the running daemon's API.
func (c *commandContext) apiGet(path string, out any) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return fmt.Errorf("api disabled: set api_bind in the configuration")
	}

	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("http://%s%s", bind, path), nil)
	if err != nil {
		return err
	}
	if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon api returned %s for %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
