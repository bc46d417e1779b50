package missions

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/missions-backend/internal/experience"
	"github.com/angelmondragon/missions-backend/internal/users"
	"github.com/angelmondragon/missions-backend/pkg/db/dbtest"
	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/missions-backend/pkg/errors"
	"github.com/angelmondragon/missions-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type feedFixture struct {
	conn    *gorm.DB
	svc     FeedService
	awarder *recordingAwarder
	now     time.Time
}

func newFeedFixture(t *testing.T) *feedFixture {
	t.Helper()
	client := dbtest.Client(t)
	f := &feedFixture{
		conn:    client.DB(),
		awarder: &recordingAwarder{},
		now:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	svc, err := NewFeedService(FeedServiceParams{
		Repo:              NewRepository(client.DB()),
		Users:             users.NewRepository(client.DB()),
		TransactionRunner: client,
		Progression:       f.awarder,
		Logger:            logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Clock:             func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *feedFixture) seedUser(t *testing.T) uuid.UUID {
	t.Helper()
	user := models.User{Email: uuid.NewString() + "@example.com"}
	require.NoError(t, f.conn.Create(&user).Error)
	return user.ID
}

func (f *feedFixture) seedMission(t *testing.T, owner *uuid.UUID, age time.Duration) uuid.UUID {
	t.Helper()
	m := models.Mission{
		UserID:    owner,
		Category:  enums.MissionCategoryFun,
		Content:   fmt.Sprintf("mission %s", uuid.NewString()),
		CreatedAt: f.now.Add(-age),
	}
	require.NoError(t, f.conn.Create(&m).Error)
	return m.ID
}

func TestFeedSkipsOwnLikedAndSwipedMissions(t *testing.T) {
	ctx := context.Background()
	f := newFeedFixture(t)
	me := f.seedUser(t)
	other := f.seedUser(t)

	f.seedMission(t, &me, time.Minute)
	liked := f.seedMission(t, &other, 2*time.Minute)
	swiped := f.seedMission(t, &other, 3*time.Minute)
	fresh := f.seedMission(t, &other, 4*time.Minute)
	anonymous := f.seedMission(t, nil, 5*time.Minute)

	_, err := f.svc.Like(ctx, me, liked)
	require.NoError(t, err)
	_, err = f.svc.Swipe(ctx, me, SwipeInput{MissionID: swiped, Direction: "left"})
	require.NoError(t, err)

	page, err := f.svc.Feed(ctx, me)
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Used)
	require.Equal(t, int64(FeedDailyLimit-1), page.Remaining)
	require.Len(t, page.Missions, 2)
	require.Equal(t, fresh, page.Missions[0].ID)
	require.Equal(t, anonymous, page.Missions[1].ID)
}

func TestSwipeOncePerMissionPerDay(t *testing.T) {
	ctx := context.Background()
	f := newFeedFixture(t)
	me := f.seedUser(t)
	other := f.seedUser(t)
	mission := f.seedMission(t, &other, time.Hour)

	_, err := f.svc.Swipe(ctx, me, SwipeInput{MissionID: mission, Direction: "right"})
	require.NoError(t, err)
	_, err = f.svc.Swipe(ctx, me, SwipeInput{MissionID: mission, Direction: "left"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	f.now = f.now.Add(24 * time.Hour)
	res, err := f.svc.Swipe(ctx, me, SwipeInput{MissionID: mission, Direction: "left"})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Used)
	require.Equal(t, []experience.Action{experience.ActionSwipe, experience.ActionSwipe}, f.awarder.actions)
}

func TestSwipeRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFeedFixture(t)
	me := f.seedUser(t)
	other := f.seedUser(t)
	mission := f.seedMission(t, &other, time.Hour)

	_, err := f.svc.Swipe(ctx, me, SwipeInput{MissionID: mission, Direction: "up"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.Swipe(ctx, me, SwipeInput{MissionID: uuid.New(), Direction: "left"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.Swipe(ctx, uuid.Nil, SwipeInput{MissionID: mission, Direction: "left"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	require.Empty(t, f.awarder.actions)
}

func TestDailyFeedCapAwardsCompletionBonusOnce(t *testing.T) {
	ctx := context.Background()
	f := newFeedFixture(t)
	me := f.seedUser(t)
	other := f.seedUser(t)

	ids := make([]uuid.UUID, 0, FeedDailyLimit+1)
	for i := 0; i <= FeedDailyLimit; i++ {
		ids = append(ids, f.seedMission(t, &other, time.Duration(i+1)*time.Minute))
	}

	var last SwipeResult
	for i := 0; i < FeedDailyLimit; i++ {
		res, err := f.svc.Swipe(ctx, me, SwipeInput{MissionID: ids[i], Direction: "right"})
		require.NoError(t, err)
		require.Equal(t, i == FeedDailyLimit-1, res.Completed)
		last = res
	}
	require.Equal(t, int64(0), last.Remaining)

	_, err := f.svc.Swipe(ctx, me, SwipeInput{MissionID: ids[FeedDailyLimit], Direction: "right"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeRateLimit), "got %v", err)

	bonuses := 0
	for _, a := range f.awarder.actions {
		if a == experience.ActionFeedComplete {
			bonuses++
		}
	}
	require.Equal(t, 1, bonuses)
	require.Len(t, f.awarder.actions, FeedDailyLimit+1)

	page, err := f.svc.Feed(ctx, me)
	require.NoError(t, err)
	require.True(t, page.HasReachedLimit)
	require.Empty(t, page.Missions)
}

func TestLikeRaisesRatingOnceAndFeedsRanking(t *testing.T) {
	ctx := context.Background()
	f := newFeedFixture(t)
	a := f.seedUser(t)
	b := f.seedUser(t)
	top := f.seedMission(t, nil, 3*time.Minute)
	second := f.seedMission(t, nil, 2*time.Minute)
	f.seedMission(t, nil, time.Minute)

	res, err := f.svc.Like(ctx, a, top)
	require.NoError(t, err)
	require.Equal(t, int64(1), res.RatingScore)
	res, err = f.svc.Like(ctx, b, top)
	require.NoError(t, err)
	require.Equal(t, int64(2), res.RatingScore)
	_, err = f.svc.Like(ctx, a, second)
	require.NoError(t, err)

	_, err = f.svc.Like(ctx, a, top)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.Like(ctx, a, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	ranking, err := f.svc.Ranking(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	require.Equal(t, top, ranking[0].ID)
	require.Equal(t, int64(2), ranking[0].RatingScore)
	require.Equal(t, second, ranking[1].ID)

	page, err := f.svc.Ranking(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, second, page[0].ID)

	_, err = f.svc.Ranking(ctx, -1, 10)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
