// Command simulator drives a running server through the recruitment flow
// with generated users, for local development.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/urfave/cli/v2"
)

const simPassword = "testpassword123"

var (
	lanes = []string{"top", "jungle", "mid", "bot", "support"}
	modes = []string{"ranked", "flex", "normal", "aram"}
	tiers = []string{"iron", "bronze", "silver", "gold", "platinum", "emerald", "diamond"}
)

func main() {
	app := &cli.App{
		Name:  "simulator",
		Usage: "development tool that exercises the recruitment board API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "api-url",
				Value:   "http://localhost:8080",
				Usage:   "backend base URL",
				EnvVars: []string{"API_URL"},
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "random seed for generated data (0 picks one from the clock)",
			},
		},
		Commands: []*cli.Command{
			seedCommand(),
			flowCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newFaker(c *cli.Context) *gofakeit.Faker {
	seed := c.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return gofakeit.New(uint64(seed))
}

type simUser struct {
	auth *AuthResponse
	lane string
}

func registerUser(c *cli.Context, client *APIClient, faker *gofakeit.Faker) (*simUser, error) {
	username := fmt.Sprintf("%s_%d", faker.Username(), faker.Number(100, 999))
	if len(username) > 32 {
		username = username[:32]
	}
	riotID := fmt.Sprintf("%s#%s", faker.Gamertag(), faker.Numerify("####"))

	auth, err := client.Register(c.Context, username, simPassword, riotID)
	if err != nil {
		return nil, err
	}
	return &simUser{auth: auth, lane: faker.RandomString(lanes)}, nil
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "register users and give each of them a post",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "users", Value: 5, Usage: "number of users to create"},
		},
		Action: func(c *cli.Context) error {
			client := NewAPIClient(c.String("api-url"))
			faker := newFaker(c)

			for i := 0; i < c.Int("users"); i++ {
				u, err := registerUser(c, client, faker)
				if err != nil {
					return err
				}
				post, err := client.CreatePost(c.Context, u.auth.AccessToken, Post{
					Title:    faker.Sentence(faker.Number(2, 5)),
					Mode:     faker.RandomString(modes),
					RankTier: faker.RandomString(tiers),
					Lane:     u.lane,
				}, faker.Sentence(faker.Number(6, 12)))
				if err != nil {
					return err
				}
				fmt.Printf("%-32s post %s (%s, %s)\n", u.auth.User.Username, post.ID, post.Mode, post.Lane)
			}
			return nil
		},
	}
}

func flowCommand() *cli.Command {
	return &cli.Command{
		Name:  "flow",
		Usage: "post, apply, accept and chat with two fresh users",
		Action: func(c *cli.Context) error {
			client := NewAPIClient(c.String("api-url"))
			faker := newFaker(c)

			author, err := registerUser(c, client, faker)
			if err != nil {
				return err
			}
			applicant, err := registerUser(c, client, faker)
			if err != nil {
				return err
			}
			fmt.Printf("author:    %s\napplicant: %s\n", author.auth.User.Username, applicant.auth.User.Username)

			post, err := client.CreatePost(c.Context, author.auth.AccessToken, Post{
				Title:    "Duo " + faker.RandomString(modes),
				Mode:     "ranked",
				RankTier: faker.RandomString(tiers),
				Lane:     author.lane,
			}, faker.Sentence(8))
			if err != nil {
				return err
			}
			fmt.Printf("post:      %s\n", post.ID)

			app, err := client.Apply(c.Context, applicant.auth.AccessToken, post.ID, applicant.lane, faker.Sentence(6))
			if err != nil {
				return err
			}
			fmt.Printf("applied:   %s\n", app.ID)

			result, err := client.Accept(c.Context, author.auth.AccessToken, app.ID)
			if err != nil {
				return err
			}
			if result.Party == nil {
				return fmt.Errorf("accept returned no party")
			}
			fmt.Printf("party:     %s (%s)\n", result.Party.ID, result.Party.Name)

			for _, u := range []*simUser{author, applicant} {
				if _, err := client.SendMessage(c.Context, u.auth.AccessToken, result.Party.ID, faker.Sentence(5)); err != nil {
					return err
				}
			}

			roster, err := client.Members(c.Context, applicant.auth.AccessToken, result.Party.ID)
			if err != nil {
				return err
			}
			for _, m := range roster {
				fmt.Printf("  %-7s %-8s %s\n", m.Role, m.Lane, m.DisplayName)
			}

			msgs, err := client.Messages(c.Context, author.auth.AccessToken, result.Party.ID)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("  [%s] %s: %s\n", m.CreatedAt.Format(time.Kitchen), m.SenderName, m.Content)
			}
			return nil
		},
	}
}
