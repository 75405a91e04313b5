package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"moviebot/internal/club"
	logx "moviebot/pkg/logx"
)

const welcomeText = "Welcome to the Movie Bot! 🎬\n\n" +
	"Here are the commands you can use:\n" +
	"/create group_name - Create a new group\n" +
	"/join group_id - Join a group\n" +
	"/add group_id movie_link - Add a movie to a group\n" +
	"/delete movie_link - Delete a movie from your groups\n" +
	"/groups - List all your groups\n" +
	"/remaining_movies group_id - Show remaining movies in a group\n"

const genericFailure = "Something went wrong. Please try again later."

// Commands builds the full command set over the domain services.
func Commands(reg *club.Registry, inv *club.Inventory) []Command {
	return []Command{
		{
			Name:        "start",
			Description: "show the welcome message",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, welcomeText)
			},
		},
		{
			Name:        "create",
			ArgsUsage:   "group_name",
			Description: "create a new group",
			Handle:      createHandler(reg),
		},
		{
			Name:        "join",
			ArgsUsage:   "group_id",
			Description: "join a group by id",
			Handle:      joinHandler(reg),
		},
		{
			Name:        "add",
			ArgsUsage:   "group_id movie_link",
			Description: "add a movie to a group",
			Handle:      addHandler(inv),
		},
		{
			Name:        "groups",
			Description: "list your groups",
			Handle:      groupsHandler(reg),
		},
		{
			Name:        "remaining_movies",
			ArgsUsage:   "group_id",
			Description: "show remaining movies in a group",
			Handle:      remainingHandler(reg, inv),
		},
		{
			Name:        "delete",
			ArgsUsage:   "movie_link",
			Description: "delete a movie from your groups",
			Handle:      deleteHandler(inv),
		},
	}
}

func createHandler(reg *club.Registry) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) < 1 {
			return req.Reply(ctx, "Usage: /create group_name")
		}
		name := strings.Join(req.Args, " ")
		g, err := reg.CreateGroup(ctx, name, req.Chat.ChatID, req.FromID)
		if err != nil {
			return replyFailure(ctx, req, err)
		}
		return req.Reply(ctx, fmt.Sprintf("Group '%s' created with ID: %s", g.Name, g.ID))
	}
}

func joinHandler(reg *club.Registry) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) != 1 {
			return req.Reply(ctx, "Usage: /join group_id")
		}
		name, err := reg.JoinGroup(ctx, req.Args[0], req.FromID)
		switch {
		case errors.Is(err, club.ErrNotFound):
			return req.Reply(ctx, "Group not found.")
		case errors.Is(err, club.ErrAlreadyMember):
			return req.Reply(ctx, "You are already in this group.")
		case err != nil:
			return replyFailure(ctx, req, err)
		}
		return req.Reply(ctx, "You have joined the group: "+name)
	}
}

func addHandler(inv *club.Inventory) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) < 2 {
			return req.Reply(ctx, "Usage: /add group_id movie_link")
		}
		groupID := req.Args[0]
		link := strings.Join(req.Args[1:], " ")
		name, err := inv.AddMovie(ctx, groupID, req.FromID, link)
		switch {
		case errors.Is(err, club.ErrNotFound):
			return req.Reply(ctx, "Group not found.")
		case errors.Is(err, club.ErrNotMember):
			return req.Reply(ctx, "You are not a member of this group. Join the group first.")
		case errors.Is(err, club.ErrDuplicate):
			return req.Reply(ctx, "This movie already exists in the group.")
		case err != nil:
			return replyFailure(ctx, req, err)
		}
		return req.Reply(ctx, "Movie added to group: "+name)
	}
}

func groupsHandler(reg *club.Registry) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		groups, err := reg.ListGroupsForUser(ctx, req.FromID)
		if err != nil {
			return replyFailure(ctx, req, err)
		}
		if len(groups) == 0 {
			return req.Reply(ctx, "You are not in any groups.")
		}
		var b strings.Builder
		b.WriteString("Your groups:\n")
		for _, g := range groups {
			fmt.Fprintf(&b, "%s (ID: %s)\n", g.Name, g.ID)
		}
		return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	}
}

func remainingHandler(reg *club.Registry, inv *club.Inventory) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) != 1 {
			return req.Reply(ctx, "Usage: /remaining_movies group_id")
		}
		g, err := reg.FindGroup(ctx, req.Args[0])
		if errors.Is(err, club.ErrNotFound) {
			return req.Reply(ctx, "Group not found.")
		}
		if err != nil {
			return replyFailure(ctx, req, err)
		}
		movies, err := inv.ListMovies(ctx, g.ID)
		if err != nil {
			return replyFailure(ctx, req, err)
		}
		if len(movies) == 0 {
			return req.Reply(ctx, "No movies remaining in this group.")
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Remaining movies in group '%s':\n", g.Name)
		for i, m := range movies {
			fmt.Fprintf(&b, "%d. %s\n", i+1, m.Link)
		}
		return req.Reply(ctx, strings.TrimRight(b.String(), "\n"))
	}
}

func deleteHandler(inv *club.Inventory) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) < 1 {
			return req.Reply(ctx, "Usage: /delete movie_link")
		}
		link := strings.Join(req.Args, " ")
		name, err := inv.DeleteMovieForUser(ctx, req.FromID, link)
		switch {
		case errors.Is(err, club.ErrNoGroups):
			return req.Reply(ctx, "You are not a member of any groups.")
		case errors.Is(err, club.ErrNotFound):
			return req.Reply(ctx, "Movie not found in any of your groups.")
		case err != nil:
			return replyFailure(ctx, req, err)
		}
		return req.Reply(ctx, "Movie deleted from group: "+name)
	}
}

// replyFailure handles unexpected (store) errors: log, generic reply, and
// surface the original error to the request-log middleware.
func replyFailure(ctx context.Context, req *Request, err error) error {
	req.Log.Error("command failed", logx.Err(err))
	_ = req.Reply(ctx, genericFailure)
	return err
}
