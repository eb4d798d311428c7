package main

import (
	"fmt"
	"os"

	"github.com/mwantia/filecheck/cmd/filecheck/cli"
	"github.com/mwantia/filecheck/cmd/filecheck/cli/client"
	"github.com/mwantia/filecheck/cmd/filecheck/cli/server"
)

var (
	version = "0.0.1-dev"
	commit  = "main"
)

func main() {
	info := cli.VersionInfo{
		Version: version,
		Commit:  commit,
	}
	root := cli.NewRootCommand(info)

	root.AddCommand(cli.NewVersionCommand(info))

	root.AddCommand(server.NewAgentCommand())
	root.AddCommand(server.NewConfigCommand())
	root.AddCommand(server.NewDatabaseCommand())
	root.AddCommand(server.NewBusCommand())

	root.AddCommand(client.NewFilesCommand())

	if err := root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
