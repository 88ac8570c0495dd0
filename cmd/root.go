// Package cmd implements the silvia command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "silvia",
	Short: "Silvia - backend de assistentes conversacionais com RAG",
	Long: `Silvia é o backend multi-tenant de assistentes conversacionais:
personas configuráveis, base de conhecimento com pesquisa semântica
(pgvector) e ferramentas (Stripe, Lex Corpus) chamadas pelo modelo.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
