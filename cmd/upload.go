/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pkgindex/backend-go/internal/db"
	"github.com/pkgindex/backend-go/pkg/oidc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload an archive to the gateway for validation",
	Args:  cobra.ExactArgs(1),
	Run:   upload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().String("profile", "default", "configuration profile to use")
}

func upload(cmd *cobra.Command, args []string) {
	if err := loadViperConfig(); err != nil {
		fmt.Println("could not load config, run configure first:", err)
		os.Exit(1)
	}
	profile, _ := cmd.Flags().GetString("profile")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		fmt.Println("could not parse config:", err)
		os.Exit(1)
	}
	gwConfig, ok := config.Profiles[profile]
	if !ok {
		fmt.Printf("no profile %q in config\n", profile)
		os.Exit(1)
	}

	client := http.DefaultClient
	if gwConfig.OidcDiscoveryEndpoint != "" {
		oidcClient, err := oidc.NewOidcClient(cmd.Context(), oidc.OidcConfig{
			ClientID:          gwConfig.ClientID,
			ClientSecret:      gwConfig.ClientSecret,
			DiscoveryEndpoint: gwConfig.OidcDiscoveryEndpoint,
		})
		if err != nil {
			fmt.Println("could not build oidc client:", err)
			os.Exit(1)
		}
		client, err = oidcClient.Client()
		if err != nil {
			fmt.Println("could not authenticate:", err)
			os.Exit(1)
		}
	}

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Println("could not open archive:", err)
		os.Exit(1)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(args[0]))
	if err != nil {
		fmt.Println("could not build upload request:", err)
		os.Exit(1)
	}
	if _, err := io.Copy(fw, f); err != nil {
		fmt.Println("could not read archive:", err)
		os.Exit(1)
	}
	mw.Close()

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
		gwConfig.GatewayEndpoint+"/api/uploads", &body)
	if err != nil {
		fmt.Println("could not build upload request:", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("upload failed:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var verdict db.Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		fmt.Printf("unexpected response from gateway (%d): %v\n", resp.StatusCode, err)
		os.Exit(1)
	}

	if verdict.Ok {
		fmt.Printf("accepted: %s (verdict %s)\n", verdict.Filename, verdict.ID)
		return
	}
	fmt.Printf("rejected: %s: %s (verdict %s)\n", verdict.Filename, verdict.Reason, verdict.ID)
	os.Exit(1)
}
