package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sunholo/ailang/internal/httpapi"
)

// newServeCmd wires internal/httpapi behind an *http.Server so CI systems
// and editors can drive the pipeline over HTTP instead of shelling out to
// verify/check/build per file.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the build/verify/check pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPipeline()
			if err != nil {
				return err
			}
			vc, err := p.cfg.VerifyConfig()
			if err != nil {
				return err
			}
			vc.Log = p.log

			httpapi.Version = Version
			srv := httpapi.NewServer(unwiredParser, vc, p.log)
			httpSrv := &http.Server{
				Addr:         addr,
				Handler:      srv.Handler(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 60 * time.Second,
			}
			fmt.Printf("%s listening on %s\n", cyan("→"), addr)
			return httpSrv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8787", "address to listen on")
	return cmd
}
