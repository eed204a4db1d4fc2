package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/huangang/taskflow/internal/config"
	"github.com/huangang/taskflow/internal/models"
	"github.com/huangang/taskflow/internal/services"
	flag "github.com/spf13/pflag"
)

// respace_positions rewrites board positions to evenly spaced values, for
// projects whose columns have been compacted by many moves.
func main() {
	configPath := flag.StringP("config", "c", os.Getenv("CONFIG_PATH"), "path to config.yaml")
	projectKey := flag.StringP("project", "p", "", "only respace the project with this key")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := models.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	fmt.Println("Connected to database successfully!")
	fmt.Println("")

	query := db.Model(&models.Project{}).Order("project_key ASC")
	if *projectKey != "" {
		query = query.Where("project_key = ?", *projectKey)
	}
	var projects []models.Project
	if err := query.Find(&projects).Error; err != nil {
		log.Fatalf("Failed to query projects: %v", err)
	}
	if len(projects) == 0 {
		fmt.Println("No projects found")
		return
	}

	clock := services.SystemClock
	recorder := services.NewActivityRecorder(db, clock)
	members := services.NewMembershipService(db, recorder, clock)
	tasks := services.NewTaskService(db, clock, members, recorder, nil, cfg.Board)

	ctx := context.Background()
	fmt.Printf("%-10s %-40s %-10s\n", "Key", "Name", "Columns")
	fmt.Println("--------------------------------------------------------------")
	total := 0
	for _, p := range projects {
		n, err := tasks.RespaceBoard(ctx, p.ID)
		if err != nil {
			log.Fatalf("Failed to respace %s: %v", p.Key, err)
		}
		total += n
		fmt.Printf("%-10s %-40s %-10d\n", p.Key, p.Name, n)
	}

	fmt.Println("")
	fmt.Printf("Respaced %d columns across %d projects (step %d)\n", total, len(projects), cfg.Board.PositionStep)
}
