package main

import "github.com/Dima2024Alekseev/bot-pm2/internal/cmd"

func main() {
	cmd.Execute()
}
