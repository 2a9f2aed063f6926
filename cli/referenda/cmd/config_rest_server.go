package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gaecom/substrate/rpc"
)

const (
	defaultRESTServerAddr = "localhost:26866"

	flagRESTServerAddress           = "rest-server-address"
	flagRESTServerReadTimeout       = "rest-server-read-timeout"
	flagRESTServerReadHeaderTimeout = "rest-server-read-header-timeout"
	flagRESTServerWriteTimeout      = "rest-server-write-timeout"
	flagRESTServerIdleTimeout       = "rest-server-idle-timeout"
	flagRESTServerMaxHeaderBytes    = "rest-server-max-header"
	flagRESTServerMaxBodyBytes      = "rest-server-max-body"
)

// restServerConfiguration adds the REST API server flags to the command.
type restServerConfiguration struct {
	rpc.ServerConfiguration
}

func (c *restServerConfiguration) addConfigurationFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Address, flagRESTServerAddress, defaultRESTServerAddr, "REST server listen address with port, server is not started when empty")
	cmd.Flags().DurationVar(&c.ReadTimeout, flagRESTServerReadTimeout, 0, "maximum duration for reading the entire request, including the body, 0 means no timeout")
	cmd.Flags().DurationVar(&c.ReadHeaderTimeout, flagRESTServerReadHeaderTimeout, 0, "amount of time allowed to read request headers, when 0 the read timeout is used")
	cmd.Flags().DurationVar(&c.WriteTimeout, flagRESTServerWriteTimeout, 0, "maximum duration before timing out writes of the response, 0 means no timeout")
	cmd.Flags().DurationVar(&c.IdleTimeout, flagRESTServerIdleTimeout, 0, "maximum amount of time to wait for the next request when keep-alive is enabled, when 0 the read timeout is used")
	cmd.Flags().IntVar(&c.MaxHeaderBytes, flagRESTServerMaxHeaderBytes, 0, "maximum number of bytes the server will read parsing the request header, 0 means the http package default")
	cmd.Flags().Int64Var(&c.MaxBodyBytes, flagRESTServerMaxBodyBytes, rpc.DefaultMaxBodyBytes, "maximum number of bytes the server will read parsing the request body")
	for _, name := range []string{flagRESTServerReadHeaderTimeout, flagRESTServerIdleTimeout, flagRESTServerMaxHeaderBytes} {
		if err := cmd.Flags().MarkHidden(name); err != nil {
			panic(err)
		}
	}
}
