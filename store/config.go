package store

import "strings"

// Config holds connection settings for one store instance.
type Config struct {
	// Keyspace namespaces every table: column family "users" lives in
	// table "<keyspace>.users".
	Keyspace string `mapstructure:"keyspace"`

	// Servers lists the DynamoDB endpoints to connect to. One client is
	// built per endpoint.
	Servers []string `mapstructure:"servers"`

	// Region is the AWS region. Empty uses the SDK default chain.
	Region string `mapstructure:"region"`

	// AccessKey and SecretKey select static credentials when both are set.
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// PoolSize is the number of connections that may be borrowed per server.
	// Default: 4
	// Max: 64
	PoolSize int `mapstructure:"pool_size"`

	// Workers bounds the fan-out of multi-row reads.
	// Default: 16
	Workers int `mapstructure:"workers"`

	// Wide-row attribute names. Every item is one cell of a row.
	// Defaults: "key", "column", "value"
	RowKeyAttribute string `mapstructure:"row_key_attribute"`
	ColumnAttribute string `mapstructure:"column_attribute"`
	ValueAttribute  string `mapstructure:"value_attribute"`
}

// DefaultConfig returns defaults for everything but the keyspace and servers.
func DefaultConfig() Config {
	return Config{
		PoolSize:        4,
		Workers:         16,
		RowKeyAttribute: "key",
		ColumnAttribute: "column",
		ValueAttribute:  "value",
	}
}

// TableName returns the table backing a column family.
func (c Config) TableName(family string) string {
	return c.Keyspace + "." + family
}

// validate fills defaults and rejects configs that cannot connect.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Keyspace) == "" {
		return &ConfigError{Field: "keyspace", Reason: "the keyspace must be set to connect"}
	}
	var servers []string
	for _, s := range c.Servers {
		if s = strings.TrimSpace(s); s != "" {
			servers = append(servers, s)
		}
	}
	if len(servers) < 1 {
		return &ConfigError{Field: "servers", Reason: "the server pool must be set to connect"}
	}
	c.Servers = servers

	if c.PoolSize < 1 {
		c.PoolSize = 4
	}
	if c.PoolSize > 64 {
		c.PoolSize = 64
	}
	if c.Workers < 1 {
		c.Workers = 16
	}
	if c.RowKeyAttribute == "" {
		c.RowKeyAttribute = "key"
	}
	if c.ColumnAttribute == "" {
		c.ColumnAttribute = "column"
	}
	if c.ValueAttribute == "" {
		c.ValueAttribute = "value"
	}
	return nil
}

// Validate reports whether the config can connect, without modifying it.
func (c Config) Validate() error {
	return c.validate()
}
