package cmd

import (
	"fmt"
	"strconv"

	"github.com/libris/pos/internal/app"
	"github.com/libris/pos/internal/models"
	"github.com/libris/pos/internal/output"
	"github.com/spf13/cobra"
)

var booksCmd = &cobra.Command{
	Use:     "books",
	Short:   "Manage the book catalog",
	GroupID: "catalog",
}

var booksListCmd = &cobra.Command{
	Use:   "list [search]",
	Short: "List books, optionally filtered by title, author or ISBN",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		search := ""
		if len(args) > 0 {
			search = args[0]
		}
		books, err := a.Facade.Books.GetAll(cmd.Context(), search)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		lowOnly, _ := cmd.Flags().GetBool("low-stock")
		if lowOnly {
			filtered := books[:0]
			for _, b := range books {
				if b.IsLowStock() {
					filtered = append(filtered, b)
				}
			}
			books = filtered
		}

		if jsonOutput(cmd) {
			return output.JSON(books)
		}
		if len(books) == 0 {
			output.Info("no books found")
			return nil
		}
		for i := range books {
			fmt.Println(output.FormatBookLine(&books[i]))
		}
		if !a.Net.IsOnline() {
			fmt.Println(output.Subtle("offline: showing cached catalog"))
		}
		return nil
	},
}

var booksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one book in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		book, err := a.Facade.Books.GetByID(cmd.Context(), id)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if book == nil {
			output.Error("book %d not found", id)
			return fmt.Errorf("book %d not found", id)
		}
		if jsonOutput(cmd) {
			return output.JSON(book)
		}
		printBook(book)
		return nil
	},
}

var booksAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a book to the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		book := bookFromFlags(cmd, &models.Book{})

		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		created, err := a.Facade.Books.Create(cmd.Context(), book)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(created)
		}
		if created.Pending {
			output.Warning("added %q locally (#%s); will sync when online", created.Title, localID(created.BookID))
		} else {
			output.Success("added %q (#%d)", created.Title, created.BookID)
		}
		return nil
	},
}

var booksUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a book's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		current, err := a.Facade.Books.GetByID(cmd.Context(), id)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if current == nil {
			output.Error("book %d not found", id)
			return fmt.Errorf("book %d not found", id)
		}

		book := bookFromFlags(cmd, current)
		updated, err := a.Facade.Books.Update(cmd.Context(), id, book)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if jsonOutput(cmd) {
			return output.JSON(updated)
		}
		if updated.Pending {
			output.Warning("updated %q locally; will sync when online", updated.Title)
		} else {
			output.Success("updated %q", updated.Title)
		}
		return nil
	},
}

var booksRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Remove a book from the catalog",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := app.Open(getBaseDir())
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer a.Close()

		if err := a.Facade.Books.Delete(cmd.Context(), id); err != nil {
			output.Error("%v", err)
			return err
		}
		if a.Net.IsOnline() {
			output.Success("removed book %d", id)
		} else {
			output.Warning("removed book %s locally; will sync when online", localID(id))
		}
		return nil
	},
}

// bookFromFlags overlays the set flags onto base, leaving unset fields alone
// so update keeps existing values.
func bookFromFlags(cmd *cobra.Command, base *models.Book) *models.Book {
	book := *base
	if cmd.Flags().Changed("title") {
		book.Title, _ = cmd.Flags().GetString("title")
	}
	if cmd.Flags().Changed("author") {
		book.Author, _ = cmd.Flags().GetString("author")
	}
	if cmd.Flags().Changed("isbn") {
		book.ISBN, _ = cmd.Flags().GetString("isbn")
	}
	if cmd.Flags().Changed("stock") {
		book.StockQty, _ = cmd.Flags().GetInt("stock")
	}
	if cmd.Flags().Changed("price") {
		book.UnitPrice, _ = cmd.Flags().GetFloat64("price")
	}
	if cmd.Flags().Changed("publisher") {
		book.PubID, _ = cmd.Flags().GetInt64("publisher")
	}
	if cmd.Flags().Changed("genre") {
		book.Genre, _ = cmd.Flags().GetString("genre")
	}
	return &book
}

func printBook(b *models.Book) {
	fmt.Println(output.Title(b.Title) + output.PendingMarker(b.Pending))
	fmt.Printf("  ID:      %s\n", localID(b.BookID))
	fmt.Printf("  Author:  %s\n", b.Author)
	fmt.Printf("  ISBN:    %s\n", b.ISBN)
	fmt.Printf("  Stock:   %s\n", output.FormatStock(b.StockQty))
	fmt.Printf("  Price:   %s\n", output.FormatMoney(b.UnitPrice))
	if b.Publisher != "" {
		fmt.Printf("  Publisher: %s\n", b.Publisher)
	}
	if b.Genre != "" {
		fmt.Printf("  Genre:   %s\n", b.Genre)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// localID renders temp ids as "local-<n>" so users never see raw negatives.
func localID(id int64) string {
	if models.IsTempID(id) {
		return fmt.Sprintf("local-%d", -id)
	}
	return strconv.FormatInt(id, 10)
}

func addBookFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "Book title")
	cmd.Flags().String("author", "", "Author name")
	cmd.Flags().String("isbn", "", "ISBN")
	cmd.Flags().Int("stock", 0, "Stock quantity")
	cmd.Flags().Float64("price", 0, "Unit price")
	cmd.Flags().Int64("publisher", 0, "Publisher ID")
	cmd.Flags().String("genre", "", "Genre")
}

func init() {
	addBookFlags(booksAddCmd)
	addBookFlags(booksUpdateCmd)
	booksListCmd.Flags().Bool("low-stock", false, "Only show books below the reorder threshold")
	addJSONFlag(booksListCmd.Flags())
	addJSONFlag(booksShowCmd.Flags())
	addJSONFlag(booksAddCmd.Flags())
	addJSONFlag(booksUpdateCmd.Flags())

	booksCmd.AddCommand(booksListCmd, booksShowCmd, booksAddCmd, booksUpdateCmd, booksRmCmd)
	rootCmd.AddCommand(booksCmd)
}
