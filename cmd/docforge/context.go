package main

import (
	"strings"
	"sync"

	"docforge/internal/config"
)

type commandContext struct {
	serverFlag *string
	tokenFlag  *string
	userFlag   *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(serverFlag, tokenFlag, userFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		serverFlag: serverFlag,
		tokenFlag:  tokenFlag,
		userFlag:   userFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

// ensureConfig loads configuration at most once. Commands that only
// talk to the daemon tolerate a missing config file when --server is
// given.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, _, _, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) user() string {
	if c.userFlag != nil && strings.TrimSpace(*c.userFlag) != "" {
		return strings.TrimSpace(*c.userFlag)
	}
	return "local"
}

// client resolves the API endpoint from flags first, then config.
func (c *commandContext) client() (*apiClient, error) {
	server := ""
	token := ""
	if c.serverFlag != nil {
		server = strings.TrimSpace(*c.serverFlag)
	}
	if c.tokenFlag != nil {
		token = strings.TrimSpace(*c.tokenFlag)
	}

	if server == "" || token == "" {
		cfg, err := c.ensureConfig()
		if err != nil && server == "" {
			return nil, err
		}
		if cfg != nil {
			if server == "" {
				server = cfg.Paths.APIBind
			}
			if token == "" {
				token = cfg.Paths.APIToken
			}
		}
	}
	return newAPIClient(server, token, c.user()), nil
}
