package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database holds PostgreSQL connection settings.
type Database struct {
	// URL wins over the individual fields when set.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`

	MaxConns int `yaml:"max_conns"`
	MinConns int `yaml:"min_conns"`
}

// File is the layout of the optional YAML config file.
type File struct {
	Database Database `yaml:"database"`
	Logging  struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads a YAML config file, expanding ${VAR} references first.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg File
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// DatabaseFromEnv reads DATABASE_URL or the DB_* variables.
func DatabaseFromEnv() (Database, error) {
	port, err := Int("DB_PORT", 0)
	if err != nil {
		return Database{}, err
	}
	return Database{
		URL:      String("DATABASE_URL", ""),
		Host:     String("DB_HOST", ""),
		Port:     port,
		User:     String("DB_USERNAME", ""),
		Password: String("DB_PASSWORD", ""),
		Name:     String("DB_NAME", ""),
		SSLMode:  String("DB_SSLMODE", ""),
	}, nil
}

// Merge fills zero fields of d from other.
func (d Database) Merge(other Database) Database {
	if d.URL == "" {
		d.URL = other.URL
	}
	if d.Host == "" {
		d.Host = other.Host
	}
	if d.Port == 0 {
		d.Port = other.Port
	}
	if d.User == "" {
		d.User = other.User
	}
	if d.Password == "" {
		d.Password = other.Password
	}
	if d.Name == "" {
		d.Name = other.Name
	}
	if d.SSLMode == "" {
		d.SSLMode = other.SSLMode
	}
	if d.MaxConns == 0 {
		d.MaxConns = other.MaxConns
	}
	if d.MinConns == 0 {
		d.MinConns = other.MinConns
	}
	return d
}

// DSN returns a postgres:// connection URL.
func (d Database) DSN() (string, error) {
	if u := strings.TrimSpace(d.URL); u != "" {
		return u, nil
	}
	if strings.TrimSpace(d.User) == "" || d.Password == "" {
		return "", errors.New("database user and password are required (DB_USERNAME, DB_PASSWORD) when DATABASE_URL is unset")
	}
	host := strings.TrimSpace(d.Host)
	if host == "" {
		host = "localhost"
	}
	port := d.Port
	if port == 0 {
		port = 5432
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		name = "board_game_db"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + name,
	}
	if mode := strings.TrimSpace(d.SSLMode); mode != "" {
		u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	}
	return u.String(), nil
}
