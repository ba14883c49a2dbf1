package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	mymcp "github.com/rickchristie/mysql-mcp"

	"github.com/go-sql-driver/mysql"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func runServe() error {
	ctx := context.Background()

	printBanner(os.Stderr, isTTY(os.Stderr.Fd()))

	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serverConfig.Server.Port <= 0 {
		panic("gomymcp: server.port must be > 0")
	}

	// 2. Resolve DSN
	dsn := os.Getenv("GOMYMCP_MYSQL_DSN")
	if dsn == "" {
		username := promptInput("Username: ")
		password := promptPassword("Password: ")
		dsn = buildDSN(serverConfig.Connection, username, password)
	}

	applySchemaDefaults(serverConfig)

	// 3. Setup logger
	logger := setupLogger(serverConfig.Logging)

	// 4. Create MySQLMcp instance
	myMcp, err := mymcp.New(ctx, dsn, serverConfig.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create MySQLMcp: %w", err)
	}
	defer myMcp.Close(ctx)

	// 5. Test database connection
	logger.Info().Msg("testing database connection")
	if err := myMcp.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	// 6. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		clientName := req.Params.ClientInfo.Name
		clientVersion := req.Params.ClientInfo.Version
		logger.Info().
			Str("client_name", clientName).
			Str("client_version", clientVersion).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("gomymcp", "1.0.0",
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)

	mymcp.RegisterMCPTools(mcpServer, myMcp)

	// 7. Start HTTP server with optional health check
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			panic("gomymcp: health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Create StreamableHTTPServer with custom http.Server
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler. Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	logger.Info().Int("port", serverConfig.Server.Port).Msg("starting gomymcp server")
	return streamableServer.Start(addr)
}

// applySchemaDefaults derives schema settings from the connection config when
// not set explicitly: a named database pins single-database mode with that
// database as the default schema; no database means multi-database mode.
func applySchemaDefaults(config *mymcp.ServerConfig) {
	if config.Schema.DefaultSchema != "" || config.Schema.MultiDB {
		return
	}
	if config.Connection.DBName != "" {
		config.Schema.DefaultSchema = config.Connection.DBName
	} else {
		config.Schema.MultiDB = true
	}
}

func loadServerConfig() (*mymcp.ServerConfig, error) {
	configPath := os.Getenv("GOMYMCP_CONFIG_PATH")
	if configPath == "" {
		configPath = ".gomymcp/config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config mymcp.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// buildDSN assembles a go-sql-driver DSN from the connection config and
// prompted credentials. mysql.Config handles escaping and formatting.
func buildDSN(conn mymcp.ConnectionConfig, username, password string) string {
	cfg := mysql.NewConfig()
	cfg.User = username
	cfg.Passwd = password
	cfg.Net = "tcp"

	host := conn.Host
	if host == "" {
		host = "localhost"
	}
	port := conn.Port
	if port <= 0 {
		port = 3306
	}
	cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	cfg.DBName = conn.DBName
	return cfg.FormatDSN()
}

func setupLogger(config mymcp.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
