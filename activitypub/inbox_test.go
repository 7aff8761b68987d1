package activitypub

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/davecheney/agora/models"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
)

func TestCommunityInboxFollow(t *testing.T) {
	is := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")
	ctx := context.Background()

	w := f.toCommunity(tech, alice, alice.follow("1", tech))
	is.Equal(http.StatusOK, w.Code, w.Body.String())
	is.Empty(w.Body.String())

	person, err := models.NewPersons(f.db).FindByURI(ctx, alice.URI)
	is.NoError(err)
	follower, err := models.NewFollowers(f.db).Find(ctx, tech.ID, person.ID)
	is.NoError(err)
	is.False(follower.Pending)

	var deliveries []models.DeliveryRequest
	is.NoError(f.db.Find(&deliveries).Error)
	is.Len(deliveries, 1)
	is.Equal(alice.URI+"/inbox", deliveries[0].Inbox)
	is.Equal(tech.URI, deliveries[0].SenderURI)
	var accept map[string]any
	is.NoError(json.Unmarshal(deliveries[0].Body, &accept))
	is.Equal("Accept", accept["type"])
	is.Equal(tech.URI, accept["actor"])
	is.Equal(alice.id("activities/follow", "1"), idFromAny(accept["object"]))
	is.True(strings.HasPrefix(accept["id"].(string), tech.URI+"/activities/accept/"))

	t.Run("redelivery is acknowledged and ignored", func(t *testing.T) {
		require := require.New(t)
		w := f.toCommunity(tech, alice, alice.follow("1", tech))
		require.Equal(http.StatusOK, w.Code)
		require.EqualValues(1, f.count(&models.CommunityFollower{}, ""))
		require.EqualValues(1, f.count(&models.DeliveryRequest{}, ""))
		require.EqualValues(1, f.count(&models.Activity{}, ""))
	})

	t.Run("a second follow keeps one subscription", func(t *testing.T) {
		require := require.New(t)
		w := f.toCommunity(tech, alice, alice.follow("2", tech))
		require.Equal(http.StatusOK, w.Code)
		require.EqualValues(1, f.count(&models.CommunityFollower{}, ""))
	})
}

func TestCommunityInboxUndoFollow(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")

	follow := alice.follow("1", tech)
	require.Equal(http.StatusOK, f.toCommunity(tech, alice, follow).Code)
	require.EqualValues(1, f.count(&models.CommunityFollower{}, ""))

	w := f.toCommunity(tech, alice, alice.undo("1", follow, tech))
	require.Equal(http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(0, f.count(&models.CommunityFollower{}, ""))

	// undoing a follow that is not there is harmless.
	w = f.toCommunity(tech, alice, alice.undo("2", follow, tech))
	require.Equal(http.StatusOK, w.Code, w.Body.String())
}

func TestCommunityInboxUndoFollowOfAnotherActor(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice := srv.actor(t, "Person", "alice")
	bob := srv.actor(t, "Person", "bob")

	follow := alice.follow("1", tech)
	require.Equal(http.StatusOK, f.toCommunity(tech, alice, follow).Code)

	w := f.toCommunity(tech, bob, bob.undo("1", follow, tech))
	require.Equal(http.StatusBadRequest, w.Code)
	require.EqualValues(1, f.count(&models.CommunityFollower{}, ""))
}

func TestCommunityInboxRejectsBadSignature(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice := srv.actor(t, "Person", "alice")
	mallory := srv.actor(t, "Person", "mallory")

	body, err := json.Marshal(alice.follow("1", tech))
	require.NoError(err)
	w := f.deliverSigned(CommunityInbox, "/c/tech/inbox", "tech", alice.URI+"#main-key", mallory.key, body)
	require.Equal(http.StatusUnauthorized, w.Code)
	require.EqualValues(0, f.count(&models.CommunityFollower{}, ""))
	require.EqualValues(0, f.count(&models.Activity{}, ""))
}

func TestCommunityInboxUnknownActor(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice := srv.actor(t, "Person", "alice")

	ghost := &remoteActor{URI: srv.URL + "/u/ghost", key: alice.key, remote: srv}
	w := f.toCommunity(tech, ghost, ghost.follow("1", tech))
	require.Equal(http.StatusUnauthorized, w.Code)
}

func TestCommunityInboxNotFound(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")

	w := f.deliver(CommunityInbox, "/c/nope/inbox", "nope", alice, alice.follow("1", tech))
	require.Equal(http.StatusNotFound, w.Code)
}

func TestCommunityInboxRejects(t *testing.T) {
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice := srv.actor(t, "Person", "alice")

	tests := map[string]struct {
		activity map[string]any
		want     int
	}{
		"unknown type": {
			activity: map[string]any{
				"id": alice.id("activities/flag", "1"), "type": "Flag", "actor": alice.URI,
				"to": []any{tech.URI}, "object": tech.URI,
			},
			want: http.StatusBadRequest,
		},
		"person vocabulary": {
			activity: map[string]any{
				"id": alice.id("activities/accept", "1"), "type": "Accept", "actor": alice.URI,
				"to": []any{tech.URI}, "object": tech.URI,
			},
			want: http.StatusBadRequest,
		},
		"missing actor": {
			activity: map[string]any{
				"id": alice.id("activities/follow", "2"), "type": "Follow",
				"to": []any{tech.URI}, "object": tech.URI,
			},
			want: http.StatusBadRequest,
		},
		"not addressed to the community": {
			activity: map[string]any{
				"id": alice.id("activities/follow", "3"), "type": "Follow", "actor": alice.URI,
				"to": []any{"https://elsewhere.example/c/other"}, "object": tech.URI,
			},
			want: http.StatusBadRequest,
		},
		"id claims local origin": {
			activity: map[string]any{
				"id": "https://" + localDomain + "/activities/follow/4", "type": "Follow", "actor": alice.URI,
				"to": []any{tech.URI}, "object": tech.URI,
			},
			want: http.StatusBadRequest,
		},
		"id on another domain than the actor": {
			activity: map[string]any{
				"id": "https://elsewhere.example/activities/follow/5", "type": "Follow", "actor": alice.URI,
				"to": []any{tech.URI}, "object": tech.URI,
			},
			want: http.StatusBadRequest,
		},
		"follow of another community": {
			activity: map[string]any{
				"id": alice.id("activities/follow", "6"), "type": "Follow", "actor": alice.URI,
				"to": []any{tech.URI}, "object": "https://" + localDomain + "/c/other",
			},
			want: http.StatusBadRequest,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			w := f.toCommunity(tech, alice, tc.activity)
			require.Equal(tc.want, w.Code, w.Body.String())
			require.JSONEq(`{"error":"`+http.StatusText(tc.want)+`"}`, w.Body.String())
			require.EqualValues(0, f.count(&models.Activity{}, ""))
			require.EqualValues(0, f.count(&models.CommunityFollower{}, ""))
		})
	}
}

func TestCommunityInboxTooLarge(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.env.Config.MaxInboxBytes = 64
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")

	w := f.toCommunity(tech, alice, alice.follow("1", tech))
	require.Equal(http.StatusRequestEntityTooLarge, w.Code)
}

func TestCreatePostIsAnnouncedOnce(t *testing.T) {
	is := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	a, b := newRemote(t), newRemote(t)
	alice, carol := a.actor(t, "Person", "alice"), a.actor(t, "Person", "carol")
	bob := b.actor(t, "Person", "bob")
	ctx := context.Background()

	for _, p := range []*remoteActor{bob, carol} {
		is.Equal(http.StatusOK, f.toCommunity(tech, p, p.follow("1", tech)).Code)
	}

	create := alice.activity(Create, "1", alice.page("1", "Hello", "first post", tech), tech)
	w := f.toCommunity(tech, alice, create)
	is.Equal(http.StatusOK, w.Code, w.Body.String())

	post, err := models.NewPosts(f.db).FindByURI(ctx, alice.id("post", "1"))
	is.NoError(err)
	is.Equal("Hello", post.Name)
	is.Equal("first post", post.Body)
	is.Equal(tech.ID, post.CommunityID)

	var queued []models.DeliveryRequest
	is.NoError(f.db.Where("inbox = ?", b.URL+"/inbox").Find(&queued).Error)
	is.Len(queued, 1, "announce is delivered to the follower's shared inbox")
	var announce map[string]any
	is.NoError(json.Unmarshal(queued[0].Body, &announce))
	is.Equal("Announce", announce["type"])
	is.Equal(tech.URI, announce["actor"])
	is.Equal(create["id"], idFromAny(announce["object"]))

	is.EqualValues(0, f.count(&models.DeliveryRequest{}, "inbox = ?", a.URL+"/inbox"), "origin server is not sent its own activity")

	activity, err := models.NewActivities(f.db).FindByURI(ctx, create["id"].(string))
	is.NoError(err)
	is.True(activity.Forwarded)

	t.Run("redelivery is not announced again", func(t *testing.T) {
		require := require.New(t)
		w := f.toCommunity(tech, alice, create)
		require.Equal(http.StatusOK, w.Code)
		require.EqualValues(1, f.count(&models.DeliveryRequest{}, "inbox = ?", b.URL+"/inbox"))
	})
}

func TestConcurrentDeliveryIsProcessedOnce(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	a, b := newRemote(t), newRemote(t)
	alice := a.actor(t, "Person", "alice")
	bob := b.actor(t, "Person", "bob")
	require.Equal(http.StatusOK, f.toCommunity(tech, bob, bob.follow("1", tech)).Code)

	create := alice.activity(Create, "1", alice.page("1", "Hello", "first post", tech), tech)
	body, err := json.Marshal(create)
	require.NoError(err)
	const n = 5
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		req := f.newRequest("/c/tech/inbox", "tech", alice.URI+"#main-key", alice.key, body)
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- f.do(CommunityInbox, req).Code
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		require.Equal(http.StatusOK, code)
	}
	require.EqualValues(1, f.count(&models.Post{}, ""))
	require.EqualValues(1, f.count(&models.DeliveryRequest{}, "inbox = ?", b.URL+"/inbox"))
}

func TestCreatePostFromAnotherDomain(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")

	page := alice.page("1", "Hello", "spoofed", tech)
	page["id"] = "https://elsewhere.example/post/1"
	w := f.toCommunity(tech, alice, alice.activity(Create, "1", page, tech))
	require.Equal(http.StatusBadRequest, w.Code)
	require.EqualValues(0, f.count(&models.Post{}, ""))
	require.EqualValues(0, f.count(&models.Activity{}, ""), "rejected activities can be redelivered")
}

func TestCreatePostAttributedToAnotherActor(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice, bob := srv.actor(t, "Person", "alice"), srv.actor(t, "Person", "bob")

	page := alice.page("1", "Hello", "not mine", tech)
	page["attributedTo"] = bob.URI
	w := f.toCommunity(tech, alice, alice.activity(Create, "1", page, tech))
	require.Equal(http.StatusBadRequest, w.Code)
	require.EqualValues(0, f.count(&models.Post{}, ""))
}

func TestUpdatePost(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice, bob := srv.actor(t, "Person", "alice"), srv.actor(t, "Person", "bob")
	ctx := context.Background()

	require.Equal(http.StatusOK, f.toCommunity(tech, alice, alice.activity(Create, "1", alice.page("1", "Hello", "draft", tech), tech)).Code)

	page := alice.page("1", "Hello again", "final", tech)
	page["commentsEnabled"] = false
	w := f.toCommunity(tech, alice, alice.activity(Update, "1", page, tech))
	require.Equal(http.StatusOK, w.Code, w.Body.String())

	post, err := models.NewPosts(f.db).FindByURI(ctx, alice.id("post", "1"))
	require.NoError(err)
	require.Equal("Hello again", post.Name)
	require.Equal("final", post.Body)
	require.True(post.Locked)

	// bob cannot take over alice's post.
	hijack := alice.page("1", "Mine now", "", tech)
	hijack["attributedTo"] = bob.URI
	w = f.toCommunity(tech, bob, bob.activity(Update, "2", hijack, tech))
	require.Equal(http.StatusBadRequest, w.Code)
	post, err = models.NewPosts(f.db).FindByURI(ctx, alice.id("post", "1"))
	require.NoError(err)
	require.Equal("Hello again", post.Name)
}

func TestContentFilterOnInbox(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")
	ctx := context.Background()

	w := f.toCommunity(tech, alice, alice.activity(Create, "1", alice.page("1", "Let us frobnicate", "body", tech), tech))
	require.Equal(http.StatusBadRequest, w.Code)
	require.EqualValues(0, f.count(&models.Post{}, ""))

	w = f.toCommunity(tech, alice, alice.activity(Create, "2", alice.page("2", "Fine title", "please frobnicate now", tech), tech))
	require.Equal(http.StatusOK, w.Code, w.Body.String())
	post, err := models.NewPosts(f.db).FindByURI(ctx, alice.id("post", "2"))
	require.NoError(err)
	require.Equal("please *removed* now", post.Body)
}

func TestBannedActorIsAcknowledged(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")
	ctx := context.Background()

	require.Equal(http.StatusOK, f.toCommunity(tech, alice, alice.follow("1", tech)).Code)
	person, err := models.NewPersons(f.db).FindByURI(ctx, alice.URI)
	require.NoError(err)
	require.NoError(models.NewBans(f.db).Ban(ctx, tech.ID, person.ID))

	w := f.toCommunity(tech, alice, alice.activity(Create, "1", alice.page("1", "Hello", "banned", tech), tech))
	require.Equal(http.StatusOK, w.Code)
	require.EqualValues(0, f.count(&models.Post{}, ""))
	require.EqualValues(1, f.count(&models.DeliveryRequest{}, ""), "only the Accept")
}

func TestVoteAndUndo(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice, bob := srv.actor(t, "Person", "alice"), srv.actor(t, "Person", "bob")
	ctx := context.Background()

	require.Equal(http.StatusOK, f.toCommunity(tech, alice, alice.activity(Create, "1", alice.page("1", "Hello", "", tech), tech)).Code)
	postURI := alice.id("post", "1")
	score := func() int32 {
		post, err := models.NewPosts(f.db).FindByURI(ctx, postURI)
		require.NoError(err)
		return post.Score
	}

	like := bob.activity(Like, "1", postURI, tech)
	require.Equal(http.StatusOK, f.toCommunity(tech, bob, like).Code)
	require.EqualValues(1, score())

	dislike := alice.activity(Dislike, "1", postURI, tech)
	require.Equal(http.StatusOK, f.toCommunity(tech, alice, dislike).Code)
	require.EqualValues(0, score())

	w := f.toCommunity(tech, bob, bob.undo("1", like, tech))
	require.Equal(http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(-1, score())

	// alice cannot undo bob's vote.
	w = f.toCommunity(tech, alice, alice.undo("2", like, tech))
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestDeleteAndRestore(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice, bob := srv.actor(t, "Person", "alice"), srv.actor(t, "Person", "bob")
	ctx := context.Background()

	require.Equal(http.StatusOK, f.toCommunity(tech, alice, alice.activity(Create, "1", alice.page("1", "Hello", "", tech), tech)).Code)
	postURI := alice.id("post", "1")
	deleted := func() bool {
		post, err := models.NewPosts(f.db).FindByURI(ctx, postURI)
		require.NoError(err)
		return post.Deleted
	}

	w := f.toCommunity(tech, bob, bob.activity(Delete, "1", postURI, tech))
	require.Equal(http.StatusBadRequest, w.Code)
	require.False(deleted())

	del := alice.activity(Delete, "2", postURI, tech)
	require.Equal(http.StatusOK, f.toCommunity(tech, alice, del).Code)
	require.True(deleted())

	require.Equal(http.StatusOK, f.toCommunity(tech, alice, alice.undo("1", del, tech)).Code)
	require.False(deleted())

	// deleting something never seen is acknowledged.
	w = f.toCommunity(tech, alice, alice.activity(Delete, "3", alice.id("post", "404"), tech))
	require.Equal(http.StatusOK, w.Code)
}

func TestRemoveIsIgnored(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")

	require.Equal(http.StatusOK, f.toCommunity(tech, alice, alice.activity(Create, "1", alice.page("1", "Hello", "", tech), tech)).Code)
	n := f.count(&models.DeliveryRequest{}, "")

	w := f.toCommunity(tech, alice, alice.activity(Remove, "1", alice.id("post", "1"), tech))
	require.Equal(http.StatusOK, w.Code)
	require.EqualValues(1, f.count(&models.Post{}, "deleted = ? AND removed = ?", false, false))
	require.Equal(n, f.count(&models.DeliveryRequest{}, ""))
}

func TestCommentFetchesUnknownPost(t *testing.T) {
	is := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice, bob := srv.actor(t, "Person", "alice"), srv.actor(t, "Person", "bob")
	ctx := context.Background()

	// the post was never delivered here, but its origin serves it.
	page := alice.page("1", "Hello", "", tech)
	srv.serve("/post/1", page)

	note := bob.note("1", "nice post", page["id"])
	note["to"] = []any{tech.URI, Public}
	w := f.toCommunity(tech, bob, bob.activity(Create, "1", note, tech))
	is.Equal(http.StatusOK, w.Code, w.Body.String())

	post, err := models.NewPosts(f.db).FindByURI(ctx, alice.id("post", "1"))
	is.NoError(err)
	comment, err := models.NewComments(f.db).FindByURI(ctx, bob.id("comment", "1"))
	is.NoError(err)
	is.Equal(post.ID, comment.PostID)
	is.Nil(comment.ParentID)

	post, err = models.NewPosts(f.db).FindByURI(ctx, post.URI)
	is.NoError(err)
	is.EqualValues(1, post.CommentsCount)

	t.Run("reply to a comment", func(t *testing.T) {
		require := require.New(t)
		reply := alice.note("2", "thanks", page["id"], note["id"])
		w := f.toCommunity(tech, alice, alice.activity(Create, "2", reply, tech))
		require.Equal(http.StatusOK, w.Code, w.Body.String())
		c, err := models.NewComments(f.db).FindByURI(ctx, alice.id("comment", "2"))
		require.NoError(err)
		require.NotNil(c.ParentID)
		require.Equal(comment.ID, *c.ParentID)
	})

	t.Run("reply to something that cannot be found", func(t *testing.T) {
		require := require.New(t)
		reply := alice.note("3", "hello?", alice.id("post", "missing"))
		w := f.toCommunity(tech, alice, alice.activity(Create, "3", reply, tech))
		require.Equal(http.StatusInternalServerError, w.Code)
		require.EqualValues(2, f.count(&models.Comment{}, ""))
	})
}

func TestCommentOnLockedPost(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	srv := newRemote(t)
	alice, bob := srv.actor(t, "Person", "alice"), srv.actor(t, "Person", "bob")

	page := alice.page("1", "Hello", "", tech)
	page["commentsEnabled"] = false
	require.Equal(http.StatusOK, f.toCommunity(tech, alice, alice.activity(Create, "1", page, tech)).Code)

	w := f.toCommunity(tech, bob, bob.activity(Create, "2", bob.note("1", "let me in", page["id"]), tech))
	require.Equal(http.StatusBadRequest, w.Code)
	require.EqualValues(0, f.count(&models.Comment{}, ""))
}

func TestSharedInboxRoutesToCommunity(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	tech := f.localCommunity("tech")
	alice := newRemote(t).actor(t, "Person", "alice")

	w := f.deliver(SharedInbox, "/inbox", "", alice, alice.follow("1", tech))
	require.Equal(http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(1, f.count(&models.CommunityFollower{}, ""))

	follow := alice.follow("2", tech)
	follow["to"] = []any{"https://" + localDomain + "/c/nope"}
	w = f.deliver(SharedInbox, "/inbox", "", alice, follow)
	require.Equal(http.StatusBadRequest, w.Code)
}

func TestPersonInboxAccept(t *testing.T) {
	is := require.New(t)
	f := newFixture(t)
	dave := f.localPerson("dave")
	group := newRemote(t).actor(t, "Group", "gophers")
	ctx := context.Background()

	community, err := f.env.pipeline(f.db).resolver.ResolveCommunity(ctx, group.URI)
	is.NoError(err)
	followers := models.NewFollowers(f.db)
	is.NoError(followers.Follow(ctx, community.ID, dave.ID, true))

	follow := map[string]any{
		"id":     "https://" + localDomain + "/u/dave/activities/follow/1",
		"type":   "Follow",
		"actor":  dave.URI,
		"object": group.URI,
	}
	accept := map[string]any{
		"@context": ContextURL,
		"id":       group.id("activities/accept", "1"),
		"type":     "Accept",
		"actor":    group.URI,
		"to":       []any{dave.URI},
		"object":   follow,
	}
	w := f.deliver(PersonInbox, "/u/dave/inbox", "dave", group, accept)
	is.Equal(http.StatusOK, w.Code, w.Body.String())
	follower, err := followers.Find(ctx, community.ID, dave.ID)
	is.NoError(err)
	is.False(follower.Pending)

	t.Run("from a person", func(t *testing.T) {
		alice := group.remote.actor(t, "Person", "alice")
		accept := map[string]any{
			"id": alice.id("activities/accept", "2"), "type": "Accept", "actor": alice.URI,
			"to": []any{dave.URI}, "object": follow,
		}
		w := f.deliver(PersonInbox, "/u/dave/inbox", "dave", alice, accept)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPersonInboxReject(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	dave := f.localPerson("dave")
	group := newRemote(t).actor(t, "Group", "gophers")
	ctx := context.Background()

	community, err := f.env.pipeline(f.db).resolver.ResolveCommunity(ctx, group.URI)
	require.NoError(err)
	require.NoError(models.NewFollowers(f.db).Follow(ctx, community.ID, dave.ID, true))

	reject := map[string]any{
		"id":    group.id("activities/reject", "1"),
		"type":  "Reject",
		"actor": group.URI,
		"to":    []any{dave.URI},
		"object": map[string]any{
			"id":     "https://" + localDomain + "/u/dave/activities/follow/1",
			"type":   "Follow",
			"actor":  dave.URI,
			"object": group.URI,
		},
	}
	w := f.deliver(SharedInbox, "/inbox", "", group, reject)
	require.Equal(http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(0, f.count(&models.CommunityFollower{}, ""))
}

func TestAnnounceFromRemoteCommunity(t *testing.T) {
	is := require.New(t)
	f := newFixture(t)
	f.localPerson("dave")
	a, b := newRemote(t), newRemote(t)
	group := a.actor(t, "Group", "gophers")
	alice := b.actor(t, "Person", "alice")
	ctx := context.Background()

	community, err := f.env.pipeline(f.db).resolver.ResolveCommunity(ctx, group.URI)
	is.NoError(err)

	create := alice.activity(Create, "1", alice.page("1", "Relayed", "", community), community)
	announce := map[string]any{
		"@context": ContextURL,
		"id":       group.id("activities/announce", "1"),
		"type":     "Announce",
		"actor":    group.URI,
		"to":       []any{Public},
		"cc":       []any{community.Followers()},
		"object":   create,
	}
	w := f.deliver(SharedInbox, "/inbox", "", group, announce)
	is.Equal(http.StatusOK, w.Code, w.Body.String())

	post, err := models.NewPosts(f.db).FindByURI(ctx, alice.id("post", "1"))
	is.NoError(err)
	is.Equal(community.ID, post.CommunityID)
	is.EqualValues(0, f.count(&models.DeliveryRequest{}, ""), "remote communities do their own announcing")

	t.Run("the same activity relayed twice is applied once", func(t *testing.T) {
		require := require.New(t)
		announce := map[string]any{
			"id": group.id("activities/announce", "2"), "type": "Announce", "actor": group.URI,
			"to": []any{Public}, "object": create,
		}
		w := f.deliver(SharedInbox, "/inbox", "", group, announce)
		require.Equal(http.StatusOK, w.Code, w.Body.String())
		require.EqualValues(1, f.count(&models.Post{}, ""))
		require.EqualValues(3, f.count(&models.Activity{}, ""))
	})
}
