package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sourove-a/splaro/internal/config"
	"github.com/sourove-a/splaro/internal/db"
	"github.com/sourove-a/splaro/internal/models"
	"github.com/sourove-a/splaro/internal/repository"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Customer directory commands",
}

var directoryImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import customers and orders from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDirectoryImport,
}

func init() {
	directoryCmd.AddCommand(directoryImportCmd)
}

// directoryFile is the import format:
//
//	customers:
//	  - id: c1
//	    name: Rahim
//	    email: rahim@example.com
//	    district: Dhaka
//	    subscribed: true
//	orders:
//	  - customer_id: c1
//	    total: 2500
//	    categories: [Saree]
type directoryFile struct {
	Customers []struct {
		ID         string    `yaml:"id"`
		Name       string    `yaml:"name"`
		Email      string    `yaml:"email"`
		Phone      string    `yaml:"phone"`
		District   string    `yaml:"district"`
		Thana      string    `yaml:"thana"`
		Subscribed bool      `yaml:"subscribed"`
		CreatedAt  time.Time `yaml:"created_at"`
	} `yaml:"customers"`
	Orders []struct {
		ID         string    `yaml:"id"`
		CustomerID string    `yaml:"customer_id"`
		Total      float64   `yaml:"total"`
		Status     string    `yaml:"status"`
		Categories []string  `yaml:"categories"`
		CreatedAt  time.Time `yaml:"created_at"`
	} `yaml:"orders"`
}

func parseDirectoryFile(data []byte) ([]models.Recipient, []models.Order, error) {
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse directory file: %w", err)
	}

	known := make(map[string]bool, len(f.Customers))
	customers := make([]models.Recipient, 0, len(f.Customers))
	for i, c := range f.Customers {
		if c.ID == "" {
			return nil, nil, fmt.Errorf("customer %d: id is required", i+1)
		}
		if known[c.ID] {
			return nil, nil, fmt.Errorf("customer %s: duplicate id", c.ID)
		}
		known[c.ID] = true
		customers = append(customers, models.Recipient{
			ID:         c.ID,
			Name:       c.Name,
			Email:      c.Email,
			Phone:      c.Phone,
			District:   c.District,
			Thana:      c.Thana,
			Subscribed: c.Subscribed,
			CreatedAt:  c.CreatedAt,
		})
	}

	orders := make([]models.Order, 0, len(f.Orders))
	for i, o := range f.Orders {
		if o.CustomerID == "" {
			return nil, nil, fmt.Errorf("order %d: customer_id is required", i+1)
		}
		if o.Total < 0 {
			return nil, nil, fmt.Errorf("order %d: total must not be negative", i+1)
		}
		orders = append(orders, models.Order{
			ID:         o.ID,
			CustomerID: o.CustomerID,
			Total:      o.Total,
			Status:     o.Status,
			Categories: o.Categories,
			CreatedAt:  o.CreatedAt,
		})
	}

	return customers, orders, nil
}

func runDirectoryImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read directory file: %w", err)
	}
	customers, orders, err := parseDirectoryFile(data)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}

	dir := repository.NewDirectoryRepository(database.DB)
	ctx := context.Background()

	for i := range customers {
		if err := dir.CreateCustomer(ctx, &customers[i]); err != nil {
			return fmt.Errorf("customer %s: %w", customers[i].ID, err)
		}
	}
	for i := range orders {
		if err := dir.CreateOrder(ctx, &orders[i]); err != nil {
			return fmt.Errorf("order for %s: %w", orders[i].CustomerID, err)
		}
	}

	fmt.Printf("Imported %d customers and %d orders\n", len(customers), len(orders))
	return nil
}
