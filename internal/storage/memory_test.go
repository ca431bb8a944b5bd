package storage_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xaenox/shop-bot/internal/models"
	"github.com/xaenox/shop-bot/internal/storage"
)

var _ = Describe("MemoryStorage", func() {
	var (
		ctx   context.Context
		store *storage.MemoryStorage
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = storage.NewMemoryStorage()
	})

	Describe("users", func() {
		It("finds users by channel address and by phone", func() {
			linked := &models.User{FirstName: "A", Phone: "09120000001", ChannelAddress: "989120000001"}
			unlinked := &models.User{FirstName: "B", Phone: "09120000002"}
			Expect(store.CreateUser(ctx, linked)).To(Succeed())
			Expect(store.CreateUser(ctx, unlinked)).To(Succeed())

			got, err := store.GetUserByChannelAddress(ctx, "989120000001")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(linked.ID))

			got, err = store.GetUserByPhone(ctx, "09120000002")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(unlinked.ID))

			By("ignoring phones of users that already have an address")
			_, err = store.GetUserByPhone(ctx, "09120000001")
			Expect(err).To(MatchError(storage.ErrNotFound))

			Expect(store.UpdateChannelAddress(ctx, unlinked.ID, "989120000002")).To(Succeed())
			_, err = store.GetUserByPhone(ctx, "09120000002")
			Expect(err).To(MatchError(storage.ErrNotFound))
		})

		It("returns copies", func() {
			u := &models.User{FirstName: "A", ChannelAddress: "x"}
			Expect(store.CreateUser(ctx, u)).To(Succeed())

			got, _ := store.GetUser(ctx, u.ID)
			got.FirstName = "changed"

			again, _ := store.GetUser(ctx, u.ID)
			Expect(again.FirstName).To(Equal("A"))
		})

		It("only grants subscriptions to known users", func() {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			Expect(store.GrantSubscription(ctx, storage.TrialSubscription(99, 7, now))).To(MatchError(storage.ErrNotFound))

			u := &models.User{FirstName: "A"}
			Expect(store.CreateUser(ctx, u)).To(Succeed())
			Expect(store.GrantSubscription(ctx, storage.TrialSubscription(u.ID, 7, now))).To(Succeed())

			subs := store.Subscriptions()
			Expect(subs).To(HaveLen(1))
			Expect(subs[0].Plan).To(Equal("trial"))
			Expect(subs[0].ExpiresAt).To(Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)))
		})
	})

	Describe("seller settings", func() {
		It("lists only sellers with a credential", func() {
			store.PutSellerSettings(&models.SellerSettings{SellerID: 2, Credential: "b"})
			store.PutSellerSettings(&models.SellerSettings{SellerID: 1, Credential: "a"})
			store.PutSellerSettings(&models.SellerSettings{SellerID: 3})

			list, err := store.ListSellerSettings(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].SellerID).To(Equal(int64(1)))
			Expect(list[1].SellerID).To(Equal(int64(2)))
		})

		It("falls back to default shipping for unknown sellers", func() {
			settings, err := store.GetSellerSettings(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(settings.Shipping).To(Equal(models.DefaultShippingSettings()))
		})
	})

	Describe("catalog", func() {
		BeforeEach(func() {
			store.PutProduct(&models.Product{ID: 1, SellerID: 1, Name: "Running Shoe", Stock: 5, Active: true})
			store.PutProduct(&models.Product{ID: 2, SellerID: 1, Name: "Sock", Description: "for running", Stock: 5, Active: true})
			store.PutProduct(&models.Product{ID: 3, SellerID: 1, Name: "Old Shoe", Stock: 5})
			store.PutProduct(&models.Product{ID: 4, SellerID: 2, Name: "Shoe", Stock: 5, Active: true})
		})

		It("searches active products of one seller by name or description", func() {
			found, err := store.SearchProducts(ctx, 1, "  RUNNING ")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(2))
			Expect(found[0].ID).To(Equal(int64(1)))
			Expect(found[1].ID).To(Equal(int64(2)))

			found, _ = store.SearchProducts(ctx, 1, "shoe")
			Expect(found).To(HaveLen(1))
			Expect(found[0].ID).To(Equal(int64(1)))
		})

		It("decrements stock without going negative", func() {
			Expect(store.DecrementStock(ctx, 1, 3)).To(Succeed())
			Expect(store.DecrementStock(ctx, 1, 3)).To(MatchError(storage.ErrInsufficientStock))
			p, _ := store.GetProduct(ctx, 1)
			Expect(p.Stock).To(Equal(2))

			Expect(store.DecrementStock(ctx, 99, 1)).To(MatchError(storage.ErrNotFound))
		})

		It("restores reserved stock", func() {
			Expect(store.DecrementStock(ctx, 1, 4)).To(Succeed())
			Expect(store.RestoreStock(ctx, 1, 4)).To(Succeed())
			p, _ := store.GetProduct(ctx, 1)
			Expect(p.Stock).To(Equal(5))

			Expect(store.RestoreStock(ctx, 99, 1)).To(MatchError(storage.ErrNotFound))
		})
	})

	Describe("carts", func() {
		It("merges lines of the same product", func() {
			Expect(store.AddCartItem(ctx, &models.CartItem{UserID: 7, ProductID: 1, SellerID: 1, Quantity: 1, UnitPrice: 100})).To(Succeed())
			Expect(store.AddCartItem(ctx, &models.CartItem{UserID: 7, ProductID: 1, SellerID: 1, Quantity: 2, UnitPrice: 120})).To(Succeed())
			Expect(store.AddCartItem(ctx, &models.CartItem{UserID: 7, ProductID: 2, SellerID: 2, Quantity: 1, UnitPrice: 50})).To(Succeed())

			cart, err := store.GetCart(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(cart).To(HaveLen(2))
			Expect(cart[0].Quantity).To(Equal(3))
			Expect(cart[0].Total()).To(Equal(int64(360)))

			Expect(store.ClearCart(ctx, 7)).To(Succeed())
			cart, _ = store.GetCart(ctx, 7)
			Expect(cart).To(BeEmpty())
		})
	})

	Describe("addresses", func() {
		It("keeps a single default", func() {
			_, err := store.GetDefaultAddress(ctx, 7)
			Expect(err).To(MatchError(storage.ErrNotFound))

			home := &models.Address{UserID: 7, Title: "home", IsDefault: true}
			work := &models.Address{UserID: 7, Title: "work", IsDefault: true}
			Expect(store.CreateAddress(ctx, home)).To(Succeed())
			Expect(store.CreateAddress(ctx, work)).To(Succeed())

			def, err := store.GetDefaultAddress(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(def.Title).To(Equal("work"))

			list, _ := store.ListAddresses(ctx, 7)
			Expect(list).To(HaveLen(2))
			Expect(list[0].IsDefault).To(BeFalse())
		})

		It("uses the latest address when none is default", func() {
			store.PutAddress(&models.Address{UserID: 7, Title: "a"})
			store.PutAddress(&models.Address{UserID: 7, Title: "b"})
			def, err := store.GetDefaultAddress(ctx, 7)
			Expect(err).NotTo(HaveOccurred())
			Expect(def.Title).To(Equal("b"))
		})
	})

	Describe("transactions", func() {
		It("finds by reference per user and sums approved amounts", func() {
			a := &models.Transaction{UserID: 7, Amount: 1000, ReferenceID: "R1", Status: models.TransactionPending}
			b := &models.Transaction{UserID: 7, Amount: 500, ReferenceID: "R2", Status: models.TransactionPending}
			Expect(store.CreateTransaction(ctx, a)).To(Succeed())
			Expect(store.CreateTransaction(ctx, b)).To(Succeed())

			found, err := store.FindTransactionByReference(ctx, 7, "R1")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(a.ID))
			_, err = store.FindTransactionByReference(ctx, 8, "R1")
			Expect(err).To(MatchError(storage.ErrNotFound))

			balance, _ := store.GetBalance(ctx, 7)
			Expect(balance).To(BeZero())

			Expect(store.SetTransactionStatus(a.ID, models.TransactionApproved)).To(Succeed())
			balance, _ = store.GetBalance(ctx, 7)
			Expect(balance).To(Equal(int64(1000)))
		})
	})

	Describe("FAQs", func() {
		It("lists active entries of one author by position, capped", func() {
			store.PutFAQ(&models.FAQ{AuthorID: 1, Question: "third", Position: 3, Active: true})
			store.PutFAQ(&models.FAQ{AuthorID: 1, Question: "first", Position: 1, Active: true})
			store.PutFAQ(&models.FAQ{AuthorID: 1, Question: "hidden", Position: 0})
			store.PutFAQ(&models.FAQ{AuthorID: 1, Question: "second", Position: 2, Active: true})
			store.PutFAQ(&models.FAQ{AuthorID: 2, Question: "other", Active: true})

			faqs, err := store.ListFAQs(ctx, 1, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(faqs).To(HaveLen(2))
			Expect(faqs[0].Question).To(Equal("first"))
			Expect(faqs[1].Question).To(Equal("second"))
		})
	})

	Describe("messages", func() {
		It("deduplicates inbound messages per seller", func() {
			msg := &models.Message{UpstreamID: "u1", UserID: 1, Direction: models.DirectionInbound}
			Expect(store.SaveMessage(ctx, msg)).To(Succeed())

			exists, _ := store.MessageExists(ctx, "u1", 1)
			Expect(exists).To(BeTrue())
			exists, _ = store.MessageExists(ctx, "u1", 2)
			Expect(exists).To(BeFalse())

			Expect(store.SaveMessage(ctx, &models.Message{UpstreamID: "u1", UserID: 1})).NotTo(Succeed())
			Expect(store.SaveMessage(ctx, &models.Message{UpstreamID: "u1", UserID: 2})).To(Succeed())

			By("never deduplicating outbound messages")
			Expect(store.SaveMessage(ctx, &models.Message{UserID: 1, Direction: models.DirectionOutbound})).To(Succeed())
			Expect(store.SaveMessage(ctx, &models.Message{UserID: 1, Direction: models.DirectionOutbound})).To(Succeed())
			Expect(store.Messages()).To(HaveLen(4))
		})

		It("marks messages read", func() {
			msg := &models.Message{UpstreamID: "u1", UserID: 1}
			Expect(store.SaveMessage(ctx, msg)).To(Succeed())
			Expect(store.MarkMessageRead(ctx, msg.ID)).To(Succeed())
			Expect(store.Messages()[0].Read).To(BeTrue())
			Expect(store.MarkMessageRead(ctx, 999)).To(MatchError(storage.ErrNotFound))
		})
	})

	It("loads a JSON seed", func() {
		seed := `{
			"users": [{"id": 10, "first_name": "Shop", "role": "seller"}],
			"settings": [{"seller_id": 10, "credential": "tok"}],
			"products": [{"seller_id": 10, "name": "Cap", "price": 1000, "stock": 2, "active": true}],
			"faqs": [{"author_id": 10, "question": "q", "answer": "a", "active": true}],
			"ai_providers": [{"provider": "gemini", "active": true, "token": "key"}]
		}`
		Expect(store.LoadSeed(strings.NewReader(seed))).To(Succeed())

		seller, err := store.GetUser(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(seller.Role).To(Equal(models.RoleSeller))

		found, _ := store.SearchProducts(ctx, 10, "cap")
		Expect(found).To(HaveLen(1))
		Expect(found[0].ID).To(BeNumerically(">", 10))

		providers, _ := store.ListAIProviders(ctx)
		Expect(providers).To(ConsistOf(models.AIProviderSetting{Provider: "gemini", Active: true, Token: "key"}))

		Expect(store.LoadSeed(strings.NewReader("{"))).To(MatchError(ContainSubstring("decoding seed")))
	})
})
