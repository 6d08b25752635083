package coordinator

import "github.com/psyche-network/psyche/types"

// JoinRun admits id into the current join window. It is valid in any
// run state except Finished; a join succeeding does not by itself cause a
// state transition; the next Tick call re-evaluates active_clients against
// min_clients.
func (c *Coordinator) JoinRun(id types.ClientId) (Client, error) {
	if c.RunState == Finished {
		return Client{}, ErrInvalidRunState
	}
	client, err := c.ClientsState.Join(id, c.Config.MaxClients)
	if err != nil {
		return Client{}, err
	}
	c.bumpTick()
	return client, nil
}

// SetWhitelist replaces the wallet-key whitelist wholesale (decentralized
// set_whitelist instruction / centralized config update path).
func (c *Coordinator) SetWhitelist(wallets []types.WalletKey) error {
	cap := c.ClientsState.Whitelist.Cap()
	if len(wallets) > cap {
		return ErrConfigSanityCheckFailed
	}
	c.ClientsState.Whitelist.Clear()
	for _, w := range wallets {
		if err := c.ClientsState.Whitelist.Push(w); err != nil {
			return err
		}
	}
	c.bumpTick()
	return nil
}

// UpdateConfigModel applies an optional config and/or model replacement,
// re-validating both before committing either.
func (c *Coordinator) UpdateConfigModel(newConfig *Config, newModel *Model) error {
	cfg := c.Config
	model := c.Model
	if newConfig != nil {
		cfg = *newConfig
	}
	if newModel != nil {
		model = *newModel
	}
	if err := cfg.Check(); err != nil {
		return ErrConfigSanityCheckFailed
	}
	if err := model.Check(); err != nil {
		return ErrModelSanityCheckFailed
	}
	c.Config = cfg
	c.Model = model
	c.bumpTick()
	return nil
}
